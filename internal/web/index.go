package web

// indexHTML is the chat page shell. It is intentionally minimal: a
// single input and message list wired against the Chat HTTP API and
// the SSE stream. Styling and richer interaction are left to whatever
// front end a deployment wants to layer on top of the JSON API.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Agent Host</title>
</head>
<body>
<div id="messages"></div>
<form id="composer">
  <input id="text" autocomplete="off" placeholder="Say something">
  <button type="submit">Send</button>
</form>
<script>
let conversationId = null;
let stream = null;

function appendMessage(role, text) {
  const el = document.createElement("div");
  el.className = "msg " + role;
  el.textContent = text;
  document.getElementById("messages").appendChild(el);
}

function openStream() {
  if (!conversationId) return;
  if (stream) stream.close();
  stream = new EventSource("/api/chat/stream?conversationId=" + encodeURIComponent(conversationId));
  stream.onmessage = (e) => {
    const frame = JSON.parse(e.data);
    if (frame.type === "message") appendMessage("assistant", frame.text);
  };
}

document.getElementById("composer").addEventListener("submit", async (e) => {
  e.preventDefault();
  const input = document.getElementById("text");
  const text = input.value.trim();
  if (!text) return;
  input.value = "";
  appendMessage("user", text);

  const res = await fetch("/api/chat", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({conversationId, text}),
  });
  const body = await res.json();
  if (!conversationId) {
    conversationId = body.conversationId;
    openStream();
  }
});
</script>
</body>
</html>
`
