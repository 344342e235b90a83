package email

import "fmt"

// AccountConfig describes the IMAP/SMTP account backing one "email"
// channel entry in the top-level channels config (channels.<id>.email).
type AccountConfig struct {
	// Name is a short identifier used in logging and as the UID
	// high-water-mark state key. Required.
	Name string `yaml:"name"`

	// IMAP configures the IMAP connection for reading email.
	IMAP IMAPConfig `yaml:"imap"`

	// SMTP configures the SMTP connection for sending email.
	// Optional — omit to disable sending from this channel.
	SMTP SMTPConfig `yaml:"smtp"`

	// DefaultFrom is the From address for outbound email from this
	// account (e.g., "Aimée <user@gmail.com>"). Required when SMTP
	// is configured.
	DefaultFrom string `yaml:"default_from"`
}

// SMTPConfigured reports whether this account has SMTP send capability.
func (a AccountConfig) SMTPConfigured() bool {
	return a.SMTP.Host != "" && a.SMTP.Username != ""
}

// ApplyDefaults fills zero-value fields with sensible defaults.
func (a *AccountConfig) ApplyDefaults() {
	if a.IMAP.Port == 0 {
		a.IMAP.Port = 993
	}
	if !a.IMAP.TLS && a.IMAP.Port != 143 {
		a.IMAP.TLS = true
	}
	if a.SMTP.Host != "" {
		if a.SMTP.Port == 0 {
			a.SMTP.Port = 587
		}
		if !a.SMTP.StartTLS && a.SMTP.Port != 465 {
			a.SMTP.StartTLS = true
		}
	}
}

// Validate checks that the account configuration is internally
// consistent. Returns an error describing the first problem found.
func (a AccountConfig) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("email account name must not be empty")
	}
	if a.IMAP.Host == "" {
		return fmt.Errorf("email account %q: imap.host is required", a.Name)
	}
	if a.IMAP.Username == "" {
		return fmt.Errorf("email account %q: imap.username is required", a.Name)
	}
	if a.IMAP.Port < 1 || a.IMAP.Port > 65535 {
		return fmt.Errorf("email account %q: imap.port %d out of range (1-65535)", a.Name, a.IMAP.Port)
	}
	if a.SMTP.Host != "" {
		if a.SMTP.Username == "" {
			return fmt.Errorf("email account %q: smtp.username is required when smtp.host is set", a.Name)
		}
		if a.SMTP.Port < 1 || a.SMTP.Port > 65535 {
			return fmt.Errorf("email account %q: smtp.port %d out of range (1-65535)", a.Name, a.SMTP.Port)
		}
		if a.DefaultFrom == "" {
			return fmt.Errorf("email account %q: default_from is required when smtp is configured", a.Name)
		}
	}
	return nil
}

// IMAPConfig holds IMAP server connection parameters.
type IMAPConfig struct {
	// Host is the IMAP server hostname (e.g., "imap.gmail.com").
	Host string `yaml:"host"`

	// Port is the IMAP server port. Default: 993 (IMAPS).
	Port int `yaml:"port"`

	// Username is the IMAP login username (typically the email address).
	Username string `yaml:"username"`

	// Password is the IMAP login password. Supports environment variable
	// expansion via the config loader (e.g., ${IMAP_PASSWORD}).
	Password string `yaml:"password"`

	// TLS controls whether to use TLS for the connection. Default: true.
	// Set to false only for port 143 plaintext connections (not recommended).
	TLS bool `yaml:"tls"`
}

// SMTPConfig holds SMTP server connection parameters for outbound email.
type SMTPConfig struct {
	// Host is the SMTP server hostname (e.g., "smtp.gmail.com").
	Host string `yaml:"host"`

	// Port is the SMTP server port. Default: 587 (submission with STARTTLS).
	Port int `yaml:"port"`

	// Username is the SMTP login username (typically the email address).
	Username string `yaml:"username"`

	// Password is the SMTP login password. Supports environment variable
	// expansion via the config loader (e.g., ${SMTP_PASSWORD}).
	Password string `yaml:"password"`

	// StartTLS controls whether to upgrade the connection with STARTTLS.
	// Default: true. Set to false for port 465 (implicit TLS).
	StartTLS bool `yaml:"starttls"`
}
