package main

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"

	"github.com/recera/stylejsx/cmd/stylejsx/internal/config"
	"github.com/recera/stylejsx/cmd/stylejsx/internal/manifest"
	"github.com/recera/stylejsx/pkg/styling/server"
)

const wsPath = "/__stylejsx/ws"

// snapshot is one build of the manifest.
type snapshot struct {
	markup      template.HTML
	css         string
	fingerprint string
	mounted     []manifest.Mounted
	err         error
}

type devServer struct {
	host         string
	port         int
	manifestPath string
	config       *config.Config
	logger       *slog.Logger

	watcher   *fsnotify.Watcher
	wsClients map[*websocket.Conn]string
	wsMutex   sync.RWMutex
	upgrader  websocket.Upgrader

	buildMutex sync.RWMutex
	current    snapshot
}

func newDevCommand() *cobra.Command {
	var project projectOptions
	var port int
	var host string

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Serve a live preview of a style manifest",
		Long: `Starts a development server that renders every manifest instance with
its flushed styles, serves them at /styles.css and pushes new styles to open
pages whenever the manifest changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDev(&project, host, port)
		},
	}

	project.AddFlags(cmd.Flags())
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to run the dev server on")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind the dev server to")

	return cmd
}

func runDev(project *projectOptions, host string, port int) error {
	cfg, err := project.config()
	if err != nil {
		log.Printf("⚠️  %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	// CLI takes precedence
	if port == 0 {
		port = cfg.Dev.Port
	}
	if host == "" {
		host = cfg.Dev.Host
	}

	s := &devServer{
		host:         host,
		port:         port,
		manifestPath: project.manifestPath(cfg),
		config:       cfg,
		logger:       project.logger().With("component", "dev"),
		wsClients:    make(map[*websocket.Conn]string),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins in dev mode
				return true
			},
		},
	}

	if err := s.rebuild(); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	s.watcher = watcher

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(s.manifestPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.manifestPath, err)
	}
	go s.watchFiles()

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\n🛑 Shutting down dev server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Printf("✨ Dev server running at http://%s (manifest %s)\n", addr, s.manifestPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *devServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.handleWebSocket)
	mux.Handle("/styles.css", gzhttp.GzipHandler(http.HandlerFunc(s.serveStyles)))
	mux.Handle("/", gzhttp.GzipHandler(http.HandlerFunc(s.servePage)))
	return mux
}

// rebuild mounts the manifest into a fresh server registry and swaps
// the snapshot. A broken manifest keeps the last good styles and shows
// the error on the page.
func (s *devServer) rebuild() error {
	next, err := s.build()
	s.buildMutex.Lock()
	defer s.buildMutex.Unlock()
	if err != nil {
		s.current.err = err
		return err
	}
	s.current = next
	return nil
}

func (s *devServer) build() (snapshot, error) {
	m, err := manifest.Load(s.manifestPath)
	if err != nil {
		return snapshot{}, err
	}

	r, err := newRegistry(s.config, nil, s.logger)
	if err != nil {
		return snapshot{}, err
	}
	mounted, err := m.Mount(r)
	if err != nil {
		return snapshot{}, err
	}

	entries, err := r.Drain()
	if err != nil {
		return snapshot{}, err
	}
	var markup bytes.Buffer
	if err := server.WriteHTML(&markup, entries); err != nil {
		return snapshot{}, err
	}

	return snapshot{
		markup:      template.HTML(markup.String()),
		css:         server.CSS(entries),
		fingerprint: server.Fingerprint(entries),
		mounted:     mounted,
	}, nil
}

func (s *devServer) snapshot() snapshot {
	s.buildMutex.RLock()
	defer s.buildMutex.RUnlock()
	return s.current
}

func (s *devServer) watchFiles() {
	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer

	pending := false
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.isRelevantFile(event.Name) {
				continue
			}
			pending = true
			debounce.Reset(100 * time.Millisecond)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Println("Watcher error:", err)

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			s.handleChange()
		}
	}
}

func (s *devServer) isRelevantFile(path string) bool {
	clean := filepath.Clean(path)
	return clean == filepath.Clean(s.manifestPath) || filepath.Base(clean) == config.FileName
}

func (s *devServer) handleChange() {
	before := s.snapshot().fingerprint
	if err := s.rebuild(); err != nil {
		log.Printf("❌ Manifest error: %v\n", err)
		s.notifyClients("error", map[string]interface{}{"message": err.Error()})
		return
	}

	current := s.snapshot()
	if current.fingerprint == before {
		return
	}
	log.Printf("🎨 Styles changed (%d instances)\n", len(current.mounted))
	s.notifyClients("styles", map[string]interface{}{
		"fingerprint": current.fingerprint,
		"css":         current.css,
	})
}

func (s *devServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	s.wsMutex.Lock()
	s.wsClients[conn] = clientID
	s.wsMutex.Unlock()
	s.logger.Debug("client connected", "client", clientID)

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.logger.Debug("client disconnected", "client", clientID)
	}()

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		switch msg["type"] {
		case "HELLO":
			current := s.snapshot()
			s.writeClient(conn, map[string]interface{}{
				"type":        "ACK",
				"client":      clientID,
				"fingerprint": current.fingerprint,
			})
		default:
			log.Printf("Unknown WebSocket message type: %v", msg["type"])
		}
	}
}

func (s *devServer) writeClient(conn *websocket.Conn, message map[string]interface{}) {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	if err := conn.WriteJSON(message); err != nil {
		log.Printf("Failed to send message to client %s: %v", s.wsClients[conn], err)
	}
}

func (s *devServer) notifyClients(msgType string, data map[string]interface{}) {
	// gorilla connections allow one concurrent writer
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	message := map[string]interface{}{
		"type": strings.ToUpper(msgType),
	}
	for k, v := range data {
		message[k] = v
	}

	for client, id := range s.wsClients {
		if err := client.WriteJSON(message); err != nil {
			log.Printf("Failed to send message to client %s: %v", id, err)
		}
	}
}

// serveStyles serves the flushed css with a content fingerprint ETag.
func (s *devServer) serveStyles(w http.ResponseWriter, r *http.Request) {
	current := s.snapshot()
	etag := `"` + current.fingerprint + `"`

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	_, _ = w.Write([]byte(current.css))
}

func (s *devServer) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	current := s.snapshot()
	data := pageData{
		Title:   s.config.Dev.Title,
		Styles:  current.markup,
		WSPath:  wsPath,
		Mounted: current.mounted,
	}
	if current.err != nil {
		data.Error = current.err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}

type pageData struct {
	Title   string
	Styles  template.HTML
	WSPath  string
	Mounted []manifest.Mounted
	Error   string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{.Styles}}
</head>
<body>
{{if .Error}}<pre class="stylejsx-error">{{.Error}}</pre>{{end}}
{{range .Mounted}}<div class="{{.Class}} {{.Component}}">{{.Component}}</div>
{{end}}
<script>
(function () {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "{{.WSPath}}");
  ws.onopen = function () { ws.send(JSON.stringify({type: "HELLO"})); };
  ws.onmessage = function (event) {
    var msg = JSON.parse(event.data);
    if (msg.type === "STYLES" || msg.type === "ERROR") { location.reload(); }
  };
})();
</script>
</body>
</html>
`))
