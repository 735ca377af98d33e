package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/logging"
	"github.com/dmitrijs2005/marksync/internal/server/services"
	"github.com/dmitrijs2005/marksync/internal/urlid"
)

// RejectedHeaderName carries the number of records a sync request could not
// accept.
const RejectedHeaderName = "X-Marksync-Rejected"

// Syncer reconciles a decoded batch for a user.
type Syncer interface {
	Sync(ctx context.Context, owner uuid.UUID, batch *bookmark.Batch, full bool) (*services.SyncResult, error)
}

// Exporter uploads a user's collection and returns where to fetch it.
type Exporter interface {
	Export(ctx context.Context, owner uuid.UUID) (*services.Export, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	syncer    Syncer
	exporter  Exporter
	db        Pinger
	logger    logging.Logger
	startTime time.Time
}

func NewHandler(syncer Syncer, exporter Exporter, db Pinger, logger logging.Logger) *Handler {
	return &Handler{
		syncer:    syncer,
		exporter:  exporter,
		db:        db,
		logger:    logger,
		startTime: time.Now(),
	}
}

type rejection struct {
	Index  int    `json:"index"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func rejections(errs []*bookmark.RecordError) []rejection {
	out := make([]rejection, 0, len(errs))
	for _, e := range errs {
		out = append(out, rejection{Index: e.Index, URL: e.URL, Error: e.Err.Error(), Status: http.StatusBadRequest})
	}
	return out
}

type syncResponse struct {
	Bookmarks []bookmark.Bookmark `json:"bookmarks"`
	Rejected  []rejection         `json:"rejected,omitempty"`
}

type rejectedResponse struct {
	Error    string      `json:"error"`
	Rejected []rejection `json:"rejected"`
}

// Sync accepts a batch as a JSON document or as NDJSON, chosen by the
// request Content-Type, and answers in the same framing with the bookmarks
// the client is behind on. With ?full it answers with the whole collection.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := OwnerFromContext(ctx)
	framing := bookmark.FramingFor(r.Header.Get("Content-Type"))
	full := r.URL.Query().Has("full")

	batch, err := bookmark.DecodeBatch(r.Body, framing)
	if err != nil {
		h.logger.Warn(ctx, "undecodable sync request", "user", owner, "framing", framing.String(), "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	for _, rej := range batch.Rejected {
		level := h.logger.Info
		if urlid.IsIdentityError(rej.Err) {
			level = h.logger.Warn
		}
		level(ctx, "rejected sync record", "user", owner, "index", rej.Index, "url", rej.URL, "error", rej.Err)
	}

	if len(batch.Bookmarks) == 0 && len(batch.Rejected) > 0 {
		writeJSON(w, http.StatusBadRequest, rejectedResponse{
			Error:    "no acceptable records: " + batch.Rejected[0].Error(),
			Rejected: rejections(batch.Rejected),
		})
		return
	}

	res, err := h.syncer.Sync(ctx, owner, batch, full)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error(ctx, "sync failed", "user", owner, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody(common.ErrorInternal.Error()))
		return
	}

	w.Header().Set(RejectedHeaderName, strconv.Itoa(len(res.Rejected)))

	if framing == bookmark.FramingJSON {
		body := syncResponse{Bookmarks: res.Bookmarks}
		if body.Bookmarks == nil {
			body.Bookmarks = []bookmark.Bookmark{}
		}
		if len(res.Rejected) > 0 {
			body.Rejected = rejections(res.Rejected)
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	h.streamNDJSON(ctx, w, owner, res.Bookmarks)
}

// streamNDJSON writes one bookmark per line and flushes as it goes, so large
// full syncs start arriving before the last line is encoded.
func (h *Handler) streamNDJSON(ctx context.Context, w http.ResponseWriter, owner uuid.UUID, bookmarks []bookmark.Bookmark) {
	w.Header().Set("Content-Type", bookmark.ContentTypeNDJSON)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	bw := bookmark.NewWriter(w, bookmark.FramingNDJSON)
	for _, b := range bookmarks {
		if err := bw.Write(b); err != nil {
			h.logger.Warn(ctx, "sync response aborted", "user", owner, "written", bw.Count(), "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// CheckAPIKey lets an extension verify its credentials; the middleware does
// the work.
func (h *Handler) CheckAPIKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

type exportResponse struct {
	Key     string    `json:"key"`
	URL     string    `json:"url"`
	Count   int       `json:"count"`
	Expires time.Time `json:"expires"`
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _ := OwnerFromContext(ctx)

	exp, err := h.exporter.Export(ctx, owner)
	if err != nil {
		h.logger.Error(ctx, "export failed", "user", owner, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody(common.ErrorInternal.Error()))
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Key: exp.Key, URL: exp.URL, Count: exp.Count, Expires: exp.Expires.UTC()})
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, healthzResponse{Status: "ok", UptimeSeconds: time.Since(h.startTime).Seconds()})
}

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
}
