// Package gateway - dashboard.go serves a minimal operational dashboard.
//
// DESIGN: A single self-contained HTML page over /stats and /events. No
// build step, no assets; the page polls /stats and streams live request
// events over the WebSocket feed. Restricted to localhost like the JSON
// surfaces it reads from.
package gateway

import (
	"net/http"
)

// handleDashboard serves the operational dashboard page.
// Restricted to localhost to prevent external access to operational data.
func (g *Gateway) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dashboardPage))
}

const dashboardPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Gemini Gateway</title>
<style>
  body { font-family: system-ui, sans-serif; background: #0a0a0a; color: #fff; margin: 0; padding: 32px; }
  h1 { font-size: 20px; margin-bottom: 4px; }
  .sub { color: #9ca3af; font-size: 13px; margin-bottom: 24px; }
  .cards { display: flex; gap: 16px; flex-wrap: wrap; margin-bottom: 32px; }
  .card { background: #161616; border: 1px solid #262626; border-radius: 8px; padding: 16px 24px; min-width: 140px; }
  .card .label { color: #9ca3af; font-size: 12px; text-transform: uppercase; }
  .card .value { font-size: 28px; font-weight: 600; margin-top: 4px; }
  table { width: 100%; border-collapse: collapse; font-size: 13px; font-family: monospace; }
  th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #262626; }
  th { color: #9ca3af; font-weight: 500; }
  .ok { color: #22c55e; }
  .err { color: #ef4444; }
</style>
</head>
<body>
<h1>Gemini Gateway</h1>
<div class="sub">uptime <span id="uptime">-</span> &middot; session reuse <span id="reuse">-</span>% &middot; <a href="/stats" style="color:#22c55e">/stats</a></div>
<div class="cards">
  <div class="card"><div class="label">Requests</div><div class="value" id="requests">0</div></div>
  <div class="card"><div class="label">Failed</div><div class="value" id="failed">0</div></div>
  <div class="card"><div class="label">Sessions</div><div class="value" id="sessions">0</div></div>
  <div class="card"><div class="label">Images</div><div class="value" id="images">0</div></div>
</div>
<table>
  <thead><tr><th>time</th><th>method</th><th>path</th><th>status</th><th>latency</th><th>model</th></tr></thead>
  <tbody id="live"></tbody>
</table>
<script>
async function refresh() {
  const res = await fetch('/stats');
  const s = await res.json();
  document.getElementById('uptime').textContent = s.uptime;
  document.getElementById('reuse').textContent = s.sessions.reuse_rate.toFixed(0);
  document.getElementById('requests').textContent = s.requests.total;
  document.getElementById('failed').textContent = s.requests.failed;
  document.getElementById('sessions').textContent = s.sessions.created;
  document.getElementById('images').textContent = s.images.returned;
}
refresh();
setInterval(refresh, 5000);

const ws = new WebSocket('ws://' + location.host + '/events');
ws.onmessage = (msg) => {
  const ev = JSON.parse(msg.data);
  const row = document.createElement('tr');
  const cls = ev.status_code < 400 ? 'ok' : 'err';
  row.innerHTML = '<td>' + new Date(ev.timestamp).toLocaleTimeString() + '</td>' +
    '<td>' + ev.method + '</td><td>' + ev.path + '</td>' +
    '<td class="' + cls + '">' + ev.status_code + '</td>' +
    '<td>' + ev.total_latency_ms + 'ms</td><td>' + (ev.model || '') + '</td>';
  const body = document.getElementById('live');
  body.prepend(row);
  while (body.children.length > 50) body.removeChild(body.lastChild);
};
</script>
</body>
</html>`
