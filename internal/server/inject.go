package server

import (
	"bytes"

	"golang.org/x/net/html"
)

// reloadScript connects to the live-reload socket. A "css" message swaps
// stylesheet URLs in place; anything else reloads the page.
const reloadScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(proto + location.host + "` + wsPath + `");
    ws.onmessage = function (ev) {
      var msg;
      try { msg = JSON.parse(ev.data); } catch (e) { return; }
      if (msg.type === "css") {
        document.querySelectorAll('link[rel="stylesheet"]').forEach(function (link) {
          var url = new URL(link.href);
          url.searchParams.set("koisite", Date.now());
          link.href = url.toString();
        });
        return;
      }
      location.reload();
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// InjectScript inserts script before the last </body> end tag of doc, or
// appends it when the document has none. Tags inside comments, scripts and
// other raw-text elements are not mistaken for the body end.
func InjectScript(doc []byte, script string) []byte {
	at := lastBodyEnd(doc)
	if at < 0 {
		out := make([]byte, 0, len(doc)+len(script))
		out = append(out, doc...)
		return append(out, script...)
	}

	out := make([]byte, 0, len(doc)+len(script))
	out = append(out, doc[:at]...)
	out = append(out, script...)
	return append(out, doc[at:]...)
}

// lastBodyEnd returns the byte offset of the last </body> tag, or -1.
func lastBodyEnd(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return found
		}
		size := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				found = offset
			}
		}
		offset += size
	}
}
