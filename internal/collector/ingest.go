// Package collector ingests status reports pushed by monit daemons.
package collector

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/monit"
	"github.com/user/monitoring/internal/storage"
	"github.com/user/monitoring/internal/util"
)

// Outcome describes what happened to one inbound report.
type Outcome struct {
	// Status is the HTTP status to answer the sender with.
	Status int
	// Archived is the path the raw payload was written to, if any.
	Archived string
	// InstanceID is the monit row the report was stored under.
	InstanceID int64
	Services   int
	Skipped    int
	Event      bool
}

// ReportIngestor ingests one raw report body.
type ReportIngestor interface {
	Ingest(ctx context.Context, payload []byte, contentType string) (Outcome, error)
}

type remoteAddrKey struct{}

// WithRemoteAddr tags ctx with the address of the reporting daemon for logs.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

func remoteAddr(ctx context.Context) string {
	if addr, ok := ctx.Value(remoteAddrKey{}).(string); ok {
		return addr
	}
	return "unknown"
}

// Collector stores monit reports in the database and archives raw payloads.
type Collector struct {
	monits   *storage.MonitStorage
	services *storage.ServiceStorage
	events   *storage.EventStorage
	archive  *Archive
	log      *util.Logger
}

// New creates a collector writing to db and archiving below archive.
func New(db *storage.DB, archive *Archive, log *util.Logger) *Collector {
	if log == nil {
		log = util.GetLogger()
	}
	return &Collector{
		monits:   storage.NewMonitStorage(db),
		services: storage.NewServiceStorage(db),
		events:   storage.NewEventStorage(db),
		archive:  archive,
		log:      log.Named("collector"),
	}
}

// Ingest decodes payload according to contentType and stores it. Decode
// problems are answered with 200 and never returned as errors; a returned
// error means the report could not be processed at all.
func (c *Collector) Ingest(ctx context.Context, payload []byte, contentType string) (Outcome, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	c.log.Debug("Report from %s with content-type %q", remoteAddr(ctx), contentType)

	switch mediaType {
	case "application/json":
		return c.ingestJSON(ctx, payload, mediaType)
	case "text/xml":
		return c.ingestXML(ctx, payload)
	default:
		c.log.Warn("Ignoring report from %s with unsupported content-type %q", remoteAddr(ctx), contentType)
		return Outcome{Status: http.StatusOK}, nil
	}
}

func (c *Collector) ingestXML(ctx context.Context, doc []byte) (Outcome, error) {
	id, err := findID(doc)
	if err != nil || !ValidID(id) {
		c.log.Warn("No usable id in XML report from %s (id %q, %v)", remoteAddr(ctx), id, err)
		return c.quarantine(ctx, "xml", doc)
	}

	path, err := c.archive.SaveXML(id, doc)
	if err != nil {
		return Outcome{}, err
	}
	c.log.Debug("Archived XML report of %s to %s", id, path)
	return Outcome{Status: http.StatusCreated, Archived: path}, nil
}

// findID returns the text of the first id element of an XML document.
func findID(doc []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", errors.New("no id element")
		}
		if err != nil {
			return "", errors.Wrap(err, "malformed XML")
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "id" {
			var id string
			if err := dec.DecodeElement(&id, &se); err != nil {
				return "", errors.Wrap(err, "malformed id element")
			}
			return strings.TrimSpace(id), nil
		}
	}
}

func (c *Collector) quarantine(ctx context.Context, suffix string, raw []byte) (Outcome, error) {
	path, err := c.archive.SaveInvalid(suffix, raw)
	if err != nil {
		return Outcome{}, err
	}
	c.log.Warn("The data from %s was saved in %s for review", remoteAddr(ctx), path)
	return Outcome{Status: http.StatusOK, Archived: path}, nil
}

func (c *Collector) ingestJSON(ctx context.Context, payload []byte, mediaType string) (Outcome, error) {
	raw := bytes.ReplaceAll(payload, []byte("\n"), nil)

	var report map[string]interface{}
	if err := sonic.Unmarshal(raw, &report); err != nil {
		c.log.Warn("Failed to parse data from %s: %v", remoteAddr(ctx), err)
		return c.quarantine(ctx, mediaType[strings.LastIndex(mediaType, "/")+1:], raw)
	}

	monitSection, _ := report["monit"].(map[string]interface{})
	server, err := monit.DecodeServer(monitSection)
	if err != nil {
		c.log.Warn("Unusable monit section from %s: %v", remoteAddr(ctx), err)
		return c.quarantine(ctx, "json", raw)
	}

	row := monit.MapServer(server)
	instanceID, created, err := c.monits.Upsert(ctx, row)
	if err != nil {
		return Outcome{}, err
	}
	if created {
		c.log.Info("Registered monit instance %s (%s)", server.ID, server.LocalHostname)
	} else {
		c.log.Debug("Updated monit instance %s", server.ID)
	}

	out := Outcome{Status: http.StatusCreated, InstanceID: instanceID}
	for _, entry := range serviceList(report["servicelist"]) {
		if c.ingestService(ctx, instanceID, entry) {
			out.Services++
		} else {
			out.Skipped++
		}
	}

	// Events link to services stored above.
	if evt, ok := report["event"].(map[string]interface{}); ok && len(evt) > 0 {
		out.Event = c.ingestEvent(ctx, evt)
	}
	return out, nil
}

func serviceList(v interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	case map[string]interface{}:
		out = append(out, t)
	}
	return out
}

func (c *Collector) ingestService(ctx context.Context, instanceID int64, entry map[string]interface{}) bool {
	rec, err := monit.DecodeService(entry)
	switch {
	case errors.Is(err, monit.ErrUnknownServiceType):
		c.log.Warn("Unknown service type %v from client %s (%v)", entry["type"], remoteAddr(ctx), entry["name"])
		return false
	case errors.Is(err, monit.ErrNotMonitored):
		c.log.Debug("Skipping unmonitored service %v", entry["name"])
		return false
	case err != nil:
		c.log.Warn("Dropping service %v from %s: %v", entry["name"], remoteAddr(ctx), err)
		return false
	}

	mapped, err := monit.Map(rec)
	if err != nil {
		c.log.Warn("Dropping service %s: %v", rec.Base().Name, err)
		return false
	}

	if _, err := c.services.Insert(ctx, instanceID, mapped); err != nil {
		c.log.Warn("Failed to store %s service %s: %v", rec.Kind(), rec.Base().Name, err)
		return false
	}
	c.log.Debug("Stored %s service %s", rec.Kind(), rec.Base().Name)
	return true
}

func (c *Collector) ingestEvent(ctx context.Context, raw map[string]interface{}) bool {
	evt, err := monit.DecodeEvent(raw)
	if err != nil {
		c.log.Warn("Dropping event from %s: %v", remoteAddr(ctx), err)
		return false
	}

	serviceID, found, err := c.services.FindLatestByName(ctx, evt.Type, evt.Service)
	if err != nil {
		c.log.Warn("Failed to resolve service %s for event: %v", evt.Service, err)
		return false
	}
	if !found {
		c.log.Warn("No service with name %s found during event processing (%s)", evt.Service, evt.Message)
		return false
	}

	if _, err := c.events.Insert(ctx, monit.MapEvent(evt, serviceID)); err != nil {
		c.log.Warn("Failed to store event for %s: %v", evt.Service, err)
		return false
	}
	c.log.Debug("Stored %s event for service %s", evt.Type, evt.Service)
	return true
}

var _ ReportIngestor = (*Collector)(nil)

