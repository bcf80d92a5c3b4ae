package server

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"campus-ranked/internal/ranked"
	"campus-ranked/internal/storage"
)

var ackPayload = []byte(`{"ok":true}`)

// parsers holds a fastjson parser pool per request shape
type parsers struct {
	userPool    fastjson.ParserPool // {user}
	matchPool   fastjson.ParserPool // {match, user}
	sendPool    fastjson.ParserPool // {match, sender, text}
	messagePool fastjson.ParserPool // {match, message, user[, text]}
}

type handler struct {
	logger  *zap.SugaredLogger
	service *ranked.Service
	parsers parsers
}

// int64Field extracts a positive 64-bit integer field from v
// it writes a 400 response and returns false when the field is unusable
func int64Field(w http.ResponseWriter, v *fastjson.Value, name string) (int64, bool) {
	if !v.Exists(name) {
		http.Error(w, "Missing Field \""+name+"\"", http.StatusBadRequest)
		return 0, false
	}

	id, err := v.Get(name).Int64()
	if err != nil {
		http.Error(w, "Field \""+name+"\" must be a 64-bit integer value", http.StatusBadRequest)
		return 0, false
	}

	if id < 1 {
		http.Error(w, "Field \""+name+"\" must be a valid id grater than zero", http.StatusBadRequest)
		return 0, false
	}

	return id, true
}

// stringField extracts a string field from v
// it writes a 400 response and returns false when the field is unusable
func stringField(w http.ResponseWriter, v *fastjson.Value, name string) (string, bool) {
	if !v.Exists(name) {
		http.Error(w, "Missing Field \""+name+"\"", http.StatusBadRequest)
		return "", false
	}

	value := v.Get(name)
	if value.Type() != fastjson.TypeString {
		http.Error(w, "Field \""+name+"\" must be a string", http.StatusBadRequest)
		return "", false
	}

	return strings.Trim(string(value.MarshalTo(nil)), `"`), true
}

// writeError maps engine sentinels onto HTTP statuses
func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrMatchNotFound):
		http.Error(w, "Match not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrMessageNotFound):
		http.Error(w, "Message not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrUserNotFound):
		http.Error(w, "User does not exist", http.StatusNotFound)
	case errors.Is(err, ranked.ErrNotParticipant):
		http.Error(w, "You are not part of this match", http.StatusForbidden)
	case errors.Is(err, ranked.ErrNotMessageAuthor):
		http.Error(w, "You can only edit your own messages", http.StatusForbidden)
	case errors.Is(err, ranked.ErrMatchEnded):
		http.Error(w, "Match has ended", http.StatusConflict)
	case errors.Is(err, ranked.ErrNotYourTurn):
		http.Error(w, "Not your turn", http.StatusConflict)
	case errors.Is(err, ranked.ErrEmptyBody):
		http.Error(w, "Field \"text\" must have non-zero length", http.StatusBadRequest)
	case errors.Is(err, ranked.ErrBodyTooLong):
		http.Error(w, "Field \"text\" must not exceed 2000 characters", http.StatusBadRequest)
	default:
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(data); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(ackPayload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// enqueueAndMatch handles HTTP requests on "/ranked/queue" endpoint
func (h *handler) enqueueAndMatch(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.userPool.Get()
	defer h.parsers.userPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	state, err := h.service.EnqueueAndMatch(r.Context(), user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// cancelQueue handles HTTP requests on "/ranked/queue/cancel" endpoint
func (h *handler) cancelQueue(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.userPool.Get()
	defer h.parsers.userPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	if err := h.service.CancelQueue(r.Context(), user); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeAck(w)
}

// status handles HTTP requests on "/ranked/status" endpoint
func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.userPool.Get()
	defer h.parsers.userPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	state, err := h.service.Status(r.Context(), user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// fetchMessages handles HTTP requests on "/ranked/messages/get" endpoint
func (h *handler) fetchMessages(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.matchPool.Get()
	defer h.parsers.matchPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	match, ok := int64Field(w, v, "match")
	if !ok {
		return
	}
	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	page, err := h.service.Messages(r.Context(), match, user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

// sendMessage handles HTTP requests on "/ranked/messages/add" endpoint
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.sendPool.Get()
	defer h.parsers.sendPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	match, ok := int64Field(w, v, "match")
	if !ok {
		return
	}
	sender, ok := int64Field(w, v, "sender")
	if !ok {
		return
	}
	text, ok := stringField(w, v, "text")
	if !ok {
		return
	}

	message, err := h.service.Send(r.Context(), match, sender, text)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, message)
}

// updateMessage handles HTTP requests on "/ranked/messages/update" endpoint
func (h *handler) updateMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.messagePool.Get()
	defer h.parsers.messagePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	match, ok := int64Field(w, v, "match")
	if !ok {
		return
	}
	message, ok := int64Field(w, v, "message")
	if !ok {
		return
	}
	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}
	text, ok := stringField(w, v, "text")
	if !ok {
		return
	}

	updated, err := h.service.Update(r.Context(), match, message, user, text)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updated)
}

// deleteMessage handles HTTP requests on "/ranked/messages/delete" endpoint
func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.messagePool.Get()
	defer h.parsers.messagePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	match, ok := int64Field(w, v, "match")
	if !ok {
		return
	}
	message, ok := int64Field(w, v, "message")
	if !ok {
		return
	}
	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), match, message, user); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeAck(w)
}

// saveTranscript handles HTTP requests on "/ranked/transcript/save" endpoint
func (h *handler) saveTranscript(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.matchPool.Get()
	defer h.parsers.matchPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	match, ok := int64Field(w, v, "match")
	if !ok {
		return
	}
	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	savedAt, err := h.service.SaveTranscript(r.Context(), match, user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"savedAt": savedAt})
}

// getTranscript handles HTTP requests on "/ranked/transcript/get" endpoint
func (h *handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.matchPool.Get()
	defer h.parsers.matchPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	match, ok := int64Field(w, v, "match")
	if !ok {
		return
	}
	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	transcript, err := h.service.Transcript(r.Context(), match, user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transcript)
}

// markTimeout handles HTTP requests on "/ranked/timeout" endpoint
func (h *handler) markTimeout(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.matchPool.Get()
	defer h.parsers.matchPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	match, ok := int64Field(w, v, "match")
	if !ok {
		return
	}
	user, ok := int64Field(w, v, "user")
	if !ok {
		return
	}

	if err := h.service.MarkTimeout(r.Context(), match, user); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeAck(w)
}
