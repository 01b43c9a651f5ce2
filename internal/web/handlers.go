package web

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/collector"
	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/storage"
)

// maxReportSize bounds the body of one pushed report.
const maxReportSize = 32 << 20

// Handlers contains HTTP handlers.
type Handlers struct {
	s *Server
}

// NewHandlers creates handlers bound to a server.
func NewHandlers(s *Server) *Handlers {
	return &Handlers{s: s}
}

// Collect ingests a report pushed by a monit daemon. Decode problems are
// answered with 200 so monit does not resend the same payload forever.
func (h *Handlers) Collect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportSize))
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to read report"), http.StatusRequestEntityTooLarge)
		return
	}

	ctx := collector.WithRemoteAddr(r.Context(), r.RemoteAddr)
	out, err := h.s.ingest.Ingest(ctx, body, r.Header.Get("Content-Type"))
	if err != nil {
		h.s.log.Error("Failed to process report from %s: %v", r.RemoteAddr, err)
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(out.Status)
}

// MonitPage renders the list of known monit instances.
func (h *Handlers) MonitPage(w http.ResponseWriter, r *http.Request) {
	instances, err := storage.NewMonitStorage(h.s.db).List(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := map[string]interface{}{"Instances": instances}
	if err := h.s.tpl.ExecuteTemplate(w, "monit.html", data); err != nil {
		h.s.log.Error("Template error: %v", err)
	}
}

// APIGetMonits returns the known monit instances.
func (h *Handlers) APIGetMonits(w http.ResponseWriter, r *http.Request) {
	instances, err := storage.NewMonitStorage(h.s.db).List(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if instances == nil {
		instances = []model.MonitInstance{}
	}
	writeJSON(w, instances)
}

// APIGetEvents returns the event timeline. since and until accept unix
// seconds or RFC 3339 and default to the last 24 hours; types is a comma
// separated list of service type names and defaults to all of them.
func (h *Handlers) APIGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now()

	since, err := parseTime(q.Get("since"), now.Add(-24*time.Hour))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	until, err := parseTime(q.Get("until"), now)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	types, err := parseTypes(q.Get("types"))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	entries, err := storage.NewEventStorage(h.s.db).Timeline(r.Context(), since.Unix(), until.Unix(), types)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	result := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		result = append(result, map[string]interface{}{
			"time":        e.Event.CollectedAt(),
			"author":      e.Author,
			"title":       e.Title(),
			"description": e.Description(),
			"event":       e.Event,
		})
	}
	writeJSON(w, result)
}

func parseTime(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid time %q", s)
	}
	return t, nil
}

func parseTypes(s string) ([]model.ServiceType, error) {
	if s == "" {
		return model.ServiceTypes(), nil
	}
	var types []model.ServiceType
	for _, name := range strings.Split(s, ",") {
		st, ok := model.ParseServiceType(strings.TrimSpace(name))
		if !ok {
			return nil, errors.Errorf("unknown service type %q", name)
		}
		types = append(types, st)
	}
	return types, nil
}

// Healthz reports liveness together with the schema version.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.s.db.PingContext(r.Context()); err != nil {
		writeError(w, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]interface{}{
		"status":     "ok",
		"db_version": h.s.db.Version(),
	})
}

// MuninPage renders the list of Munin domains.
func (h *Handlers) MuninPage(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{}
	if stats, err := h.s.stats.Get(r.Context()); err != nil {
		h.s.log.Warn("Munin stats unavailable: %v", err)
		data["Error"] = "Munin data is not available."
	} else {
		data["Version"] = stats.Version
		data["Domains"] = stats.DomainNames()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.s.tpl.ExecuteTemplate(w, "munin.html", data); err != nil {
		h.s.log.Error("Template error: %v", err)
	}
}

// MuninHosts lists the nodes of a domain, headed by "<host>".
func (h *Handlers) MuninHosts(w http.ResponseWriter, r *http.Request) {
	stats, err := h.s.stats.Get(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	vars := mux.Vars(r)
	writeJSON(w, append([]string{"<host>"}, stats.Hosts(vars["domain"])...))
}

// MuninCategories lists the categories of a node, headed by "<category>".
func (h *Handlers) MuninCategories(w http.ResponseWriter, r *http.Request) {
	stats, err := h.s.stats.Get(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	vars := mux.Vars(r)
	writeJSON(w, append([]string{"<category>"}, stats.Categories(vars["domain"], vars["host"])...))
}

// MuninDetails lists the label/value pairs of one category of a node.
func (h *Handlers) MuninDetails(w http.ResponseWriter, r *http.Request) {
	stats, err := h.s.stats.Get(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	vars := mux.Vars(r)
	writeJSON(w, stats.Details(vars["domain"], vars["host"], vars["category"]))
}

// MuninValues renders graphs for comma separated categories of a node and
// returns the image URLs.
func (h *Handlers) MuninValues(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var cats []string
	for _, c := range strings.Split(vars["categories"], ",") {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}

	urls, err := h.s.grapher.Render(r.Context(), vars["host"], cats)
	if err != nil {
		h.s.log.Warn("munin-graph failed for %s: %v", vars["host"], err)
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, urls)
}

// MuninImage serves a generated graph.
func (h *Handlers) MuninImage(w http.ResponseWriter, r *http.Request) {
	f, err := h.s.grapher.Open(mux.Vars(r)["name"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	buf, err := sonic.Marshal(data)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf)
}

func writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	buf, _ := sonic.Marshal(map[string]string{"error": err.Error()})
	w.Write(buf)
}
