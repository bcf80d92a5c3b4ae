package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"campus-ranked/internal/ranked"
	"campus-ranked/internal/storage"
	mytesting "campus-ranked/internal/testing"
)

type mapDirectory map[int64]ranked.Identity

func (d mapDirectory) Resolve(_ context.Context, user int64) (ranked.Identity, error) {
	identity, ok := d[user]
	if !ok {
		return ranked.Identity{}, storage.ErrUserNotFound
	}
	return identity, nil
}

func bootstrapHandler(t *testing.T) *handler {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	dir := mapDirectory{
		1: {ID: 1, Name: "Alice Chen", Handle: "alice"},
		2: {ID: 2, Name: "Bob Park", Handle: "bob"},
		3: {ID: 3, Name: "Cara Diaz", Handle: "cara"},
	}
	service := ranked.NewService(logger.Sugar(), mytesting.NewMemStore(), dir)

	return &handler{
		logger:  logger.Sugar(),
		service: service,
		parsers: parsers{
			userPool:    fastjson.ParserPool{},
			matchPool:   fastjson.ParserPool{},
			sendPool:    fastjson.ParserPool{},
			messagePool: fastjson.ParserPool{},
		},
	}
}

func post(t *testing.T, h http.HandlerFunc, payload string) *httptest.ResponseRecorder {
	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) *fastjson.Value {
	var p fastjson.Parser
	v, err := p.ParseBytes(rr.Body.Bytes())
	require.NoError(t, err)
	return v
}

// pairUsers matches users 1 and 2 through the queue endpoint and reports the
// match id along with who holds the opening turn
func pairUsers(t *testing.T, h *handler) (matchID, holder, waiter int64) {
	rr := post(t, h.enqueueAndMatch, `{"user":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "waiting", string(parseBody(t, rr).GetStringBytes("status")))

	rr = post(t, h.enqueueAndMatch, `{"user":2}`)
	require.Equal(t, http.StatusOK, rr.Code)

	v := parseBody(t, rr)
	require.Equal(t, "matched", string(v.GetStringBytes("status")))

	matchID, err := v.Get("matchId").Int64()
	require.NoError(t, err)

	if v.GetBool("isMyTurn") {
		return matchID, 2, 1
	}
	return matchID, 1, 2
}

func statusOkHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestEnforcePostJson(t *testing.T) {
	t.Parallel()

	rr := post(t, enforcePostJson(http.HandlerFunc(statusOkHandler)).ServeHTTP, `{"user":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforcePostJson_NotPost(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("GET", "/", bytes.NewBufferString(`{"user":1}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	enforcePostJson(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, http.StatusText(http.StatusMethodNotAllowed)+"\n", rr.Body.String())
}

func TestEnforcePostJson_MalformedJSON(t *testing.T) {
	t.Parallel()

	rr := post(t, enforcePostJson(http.HandlerFunc(statusOkHandler)).ServeHTTP, `{"user":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Malformed JSON\n", rr.Body.String())
}

func TestEnqueueWaiting(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	rr := post(t, h.enqueueAndMatch, `{"user":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Equal(t, "waiting", string(parseBody(t, rr).GetStringBytes("status")))
}

func TestEnqueueMatched(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	_, _, _ = pairUsers(t, h)
}

func TestEnqueueMissingUser(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	rr := post(t, h.enqueueAndMatch, `{"alice":"bob"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing Field \"user\"\n", rr.Body.String())
}

func TestEnqueueBadUser(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	rr := post(t, h.enqueueAndMatch, `{"user":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Field \"user\" must be a valid id grater than zero\n", rr.Body.String())
}

func TestStatusIdle(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	rr := post(t, h.status, `{"user":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "idle", string(parseBody(t, rr).GetStringBytes("status")))
}

func TestCancelQueue(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	rr := post(t, h.enqueueAndMatch, `{"user":1}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = post(t, h.cancelQueue, `{"user":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"ok":true}`, rr.Body.String())

	rr = post(t, h.status, `{"user":1}`)
	require.Equal(t, "idle", string(parseBody(t, rr).GetStringBytes("status")))
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, holder, _ := pairUsers(t, h)

	payload := `{"match":` + strconv.FormatInt(matchID, 10) +
		`,"sender":` + strconv.FormatInt(holder, 10) + `,"text":"hello there"}`
	rr := post(t, h.sendMessage, payload)
	require.Equal(t, http.StatusCreated, rr.Code)

	v := parseBody(t, rr)
	require.Equal(t, "hello there", string(v.GetStringBytes("body")))
	require.False(t, v.GetBool("edited"))

	sender, err := v.Get("sender").Get("id").Int64()
	require.NoError(t, err)
	require.Equal(t, holder, sender)

	// sending again out of turn is a conflict
	rr = post(t, h.sendMessage, payload)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "Not your turn\n", rr.Body.String())
}

func TestSendUnknownMatch(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	rr := post(t, h.sendMessage, `{"match":42,"sender":1,"text":"anyone?"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "Match not found\n", rr.Body.String())
}

func TestSendForbidden(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, _, _ := pairUsers(t, h)

	rr := post(t, h.sendMessage, `{"match":`+strconv.FormatInt(matchID, 10)+`,"sender":3,"text":"let me in"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "You are not part of this match\n", rr.Body.String())
}

func TestSendEmptyText(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, holder, _ := pairUsers(t, h)

	payload := `{"match":` + strconv.FormatInt(matchID, 10) +
		`,"sender":` + strconv.FormatInt(holder, 10) + `,"text":"   "}`
	rr := post(t, h.sendMessage, payload)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Field \"text\" must have non-zero length\n", rr.Body.String())
}

func TestSendAfterTimeout(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, holder, waiter := pairUsers(t, h)

	rr := post(t, h.markTimeout, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"user":`+strconv.FormatInt(waiter, 10)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = post(t, h.sendMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"sender":`+strconv.FormatInt(holder, 10)+`,"text":"hello?"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "Match has ended\n", rr.Body.String())
}

func TestUpdateMessage(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, holder, waiter := pairUsers(t, h)

	rr := post(t, h.sendMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"sender":`+strconv.FormatInt(holder, 10)+`,"text":"hello"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	messageID, err := parseBody(t, rr).Get("id").Int64()
	require.NoError(t, err)

	rr = post(t, h.updateMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"message":`+strconv.FormatInt(messageID, 10)+
		`,"user":`+strconv.FormatInt(holder, 10)+`,"text":"hi"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	v := parseBody(t, rr)
	require.Equal(t, "hi", string(v.GetStringBytes("body")))
	require.True(t, v.GetBool("edited"))

	// only the author may edit
	rr = post(t, h.updateMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"message":`+strconv.FormatInt(messageID, 10)+
		`,"user":`+strconv.FormatInt(waiter, 10)+`,"text":"hijacked"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "You can only edit your own messages\n", rr.Body.String())
}

func TestDeleteMessageCollapsedNotFound(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, holder, waiter := pairUsers(t, h)

	rr := post(t, h.sendMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"sender":`+strconv.FormatInt(holder, 10)+`,"text":"oops"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	messageID, err := parseBody(t, rr).Get("id").Int64()
	require.NoError(t, err)

	// someone else's delete attempt and a missing row look the same
	rr = post(t, h.deleteMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"message":`+strconv.FormatInt(messageID, 10)+
		`,"user":`+strconv.FormatInt(waiter, 10)+`}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "Message not found\n", rr.Body.String())

	rr = post(t, h.deleteMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"message":`+strconv.FormatInt(messageID, 10)+
		`,"user":`+strconv.FormatInt(holder, 10)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"ok":true}`, rr.Body.String())
}

func TestFetchMessages(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, holder, waiter := pairUsers(t, h)

	rr := post(t, h.sendMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"sender":`+strconv.FormatInt(holder, 10)+`,"text":"hello"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = post(t, h.fetchMessages, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"user":`+strconv.FormatInt(waiter, 10)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)

	v := parseBody(t, rr)
	messages := v.GetArray("messages")
	require.Len(t, messages, 1)
	require.Equal(t, "hello", string(messages[0].GetStringBytes("body")))
	require.False(t, v.GetBool("timedOut"))
	require.True(t, v.GetBool("isMyTurn"))
}

func TestSaveTranscriptIdempotent(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)

	matchID, holder, waiter := pairUsers(t, h)

	rr := post(t, h.sendMessage, `{"match":`+strconv.FormatInt(matchID, 10)+
		`,"sender":`+strconv.FormatInt(holder, 10)+`,"text":"hello"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	payload := `{"match":` + strconv.FormatInt(matchID, 10) +
		`,"user":` + strconv.FormatInt(waiter, 10) + `}`

	rr = post(t, h.saveTranscript, payload)
	require.Equal(t, http.StatusOK, rr.Code)
	first := string(parseBody(t, rr).GetStringBytes("savedAt"))
	require.NotEmpty(t, first)

	time.Sleep(10 * time.Millisecond)

	rr = post(t, h.saveTranscript, payload)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, first, string(parseBody(t, rr).GetStringBytes("savedAt")))

	rr = post(t, h.getTranscript, payload)
	require.Equal(t, http.StatusOK, rr.Code)

	entries := parseBody(t, rr).GetArray("entries")
	require.Len(t, entries, 1)
	require.Equal(t, "hello", string(entries[0].GetStringBytes("body")))
}
