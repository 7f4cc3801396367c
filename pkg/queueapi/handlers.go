package queueapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/docqueue/pkg/logger"
	"github.com/dmitrymomot/docqueue/pkg/queue"
)

type addRequest struct {
	Payload  json.RawMessage    `json:"payload,omitempty"`
	Payloads *[]json.RawMessage `json:"payloads,omitempty"`
	Delay    *float64           `json:"delay,omitempty"`
}

type addResponse struct {
	ID  string   `json:"id,omitempty"`
	IDs []string `json:"ids,omitempty"`
}

type claimRequest struct {
	Visibility *float64 `json:"visibility,omitempty"`
}

type extendRequest struct {
	Visibility *float64 `json:"visibility,omitempty"`
	ResetTries bool     `json:"reset_tries,omitempty"`
	Release    bool     `json:"release,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

type queueInfo struct {
	Name            string  `json:"name"`
	Visibility      float64 `json:"visibility"`
	DeadLetterQueue string  `json:"dead_letter_queue,omitempty"`
	MaxRetries      int     `json:"max_retries"`
}

func (a *API) listQueues(w http.ResponseWriter, r *http.Request) {
	infos := make([]queueInfo, 0, len(a.names))
	for _, name := range a.names {
		q := a.queues[name]
		info := queueInfo{
			Name:       name,
			Visibility: q.Visibility().Seconds(),
			MaxRetries: q.MaxRetries(),
		}
		if dq := q.DeadLetterQueue(); dq != nil {
			info.DeadLetterQueue = dq.Name()
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *API) addMessages(w http.ResponseWriter, r *http.Request) {
	q, ok := a.queue(w, r)
	if !ok {
		return
	}

	var req addRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeError(w, r, err)
		return
	}

	var opts []queue.AddOption
	delay, set, err := seconds(req.Delay)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if set {
		opts = append(opts, queue.WithDelay(delay))
	}

	switch {
	case req.Payload != nil && req.Payloads != nil:
		a.writeError(w, r, ErrAmbiguousPayload)

	case req.Payloads != nil:
		payloads := make([]any, 0, len(*req.Payloads))
		for _, p := range *req.Payloads {
			payloads = append(payloads, rawPayload(p))
		}
		ids, err := q.AddBatch(r.Context(), payloads, opts...)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, addResponse{IDs: ids})

	case req.Payload != nil:
		id, err := q.Add(r.Context(), rawPayload(req.Payload), opts...)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, addResponse{ID: id})

	default:
		a.writeError(w, r, ErrPayloadRequired)
	}
}

// rawPayload turns a JSON null into a nil payload, which Queue.Add rejects.
func rawPayload(raw json.RawMessage) any {
	if raw == nil || isNullJSON(raw) {
		return nil
	}
	return raw
}

func (a *API) claim(w http.ResponseWriter, r *http.Request) {
	q, ok := a.queue(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := decodeJSON(r, &req, true); err != nil {
		a.writeError(w, r, err)
		return
	}

	var opts []queue.ClaimOption
	visibility, set, err := seconds(req.Visibility)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if set {
		opts = append(opts, queue.WithLeaseDuration(visibility))
	}

	d, err := q.Claim(r.Context(), opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if d == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	a.log.DebugContext(r.Context(), "message claimed over http",
		logger.Queue(q.Name()),
		logger.MessageID(d.ID),
		logger.Tries(d.Tries))
	writeJSON(w, http.StatusOK, d)
}

func (a *API) extend(w http.ResponseWriter, r *http.Request) {
	q, ok := a.queue(w, r)
	if !ok {
		return
	}

	var req extendRequest
	if err := decodeJSON(r, &req, true); err != nil {
		a.writeError(w, r, err)
		return
	}

	var opts []queue.ExtendOption
	visibility, set, err := seconds(req.Visibility)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if set {
		opts = append(opts, queue.WithExtendDuration(visibility))
	}
	if req.ResetTries {
		opts = append(opts, queue.WithResetTries())
	}
	if req.Release {
		opts = append(opts, queue.WithReleaseLease())
	}

	id, err := q.Extend(r.Context(), chi.URLParam(r, "token"), opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	q, ok := a.queue(w, r)
	if !ok {
		return
	}

	id, err := q.Finalize(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (a *API) clean(w http.ResponseWriter, r *http.Request) {
	q, ok := a.queue(w, r)
	if !ok {
		return
	}

	if err := q.Clean(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	q, ok := a.queue(w, r)
	if !ok {
		return
	}

	s, err := q.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
