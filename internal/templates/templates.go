package templates

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"challasaath/internal/relay"
	"challasaath/internal/storage"
)

//go:embed *.html
var files embed.FS

var pages = template.Must(template.ParseFS(files, "*.html"))

var (
	commit    = "dev"
	buildDate = ""
)

// SetCommit records the build shown in page footers and health checks.
func SetCommit(c, date string) {
	commit, buildDate = c, date
}

// Commit returns the recorded build commit.
func Commit() string { return commit }

// BuildDate returns the recorded build date.
func BuildDate() string { return buildDate }

// HomeData is rendered by the home page.
type HomeData struct {
	Rooms     []relay.RoomInfo
	Stats     storage.Stats
	Commit    string
	BuildDate string
}

// WriteHomeHTML serves the home page listing open public rooms
func WriteHomeHTML(w http.ResponseWriter, data HomeData) {
	data.Commit, data.BuildDate = commit, buildDate
	render(w, "home.html", data)
}

// WriteWatchHTML serves the spectator page for a room
func WriteWatchHTML(w http.ResponseWriter, code string) {
	render(w, "watch.html", map[string]string{"Code": code, "Commit": commit})
}

func render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
