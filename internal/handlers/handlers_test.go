package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"sms-broadcaster/internal/broadcast"
	"sms-broadcaster/internal/middleware"
	"sms-broadcaster/internal/subscription"
	"sms-broadcaster/internal/test"
	"sms-broadcaster/pkg/tasks"
	"sms-broadcaster/web"
)

var passThrough = mux.MiddlewareFunc(func(next http.Handler) http.Handler { return next })

type fixture struct {
	router   *mux.Router
	mock     sqlmock.Sqlmock
	sender   *test.MockSender
	enqueuer *test.MockTaskEnqueuer
}

func newFixture(t *testing.T, queued bool) *fixture {
	store, mock := test.NewMockDB(t)
	tmpl, err := web.Templates()
	require.NoError(t, err)

	f := &fixture{mock: mock, sender: &test.MockSender{}}
	var enqueuer tasks.TaskEnqueuer
	if queued {
		f.enqueuer = &test.MockTaskEnqueuer{}
		enqueuer = f.enqueuer
	}

	log := zap.NewNop()
	h := New(tmpl,
		subscription.New(store, f.sender, "Acme", log),
		broadcast.NewBatcher(f.sender, "Acme", log),
		store, enqueuer, log)
	f.router = h.Router(passThrough, passThrough)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func webhookRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sendRequest(message string) *http.Request {
	form := url.Values{}
	form.Add("message", message)
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(form.Encode()))
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	return req
}

const selectSubscriber = `SELECT number, subscribed, created_at, updated_at FROM subscribers WHERE number = \$1`

func TestWebhookSubscribe(t *testing.T) {
	f := newFixture(t, false)

	f.mock.ExpectQuery(selectSubscriber).WithArgs("+31610000000").WillReturnError(sql.ErrNoRows)
	f.mock.ExpectExec(`INSERT INTO subscribers`).WithArgs("+31610000000").WillReturnResult(sqlmock.NewResult(0, 1))

	rr := f.do(webhookRequest(`{"originator": "+31610000000", "body": "Subscribe"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
	require.Len(t, f.sender.Sent, 1)
	assert.Equal(t, []string{"+31610000000"}, f.sender.Sent[0].Recipients)
	assert.Equal(t, subscription.MessageSubscribed, f.sender.Sent[0].Body)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWebhookStop(t *testing.T) {
	f := newFixture(t, false)

	rows := sqlmock.NewRows([]string{"number", "subscribed"}).AddRow("+31610000000", true)
	f.mock.ExpectQuery(selectSubscriber).WithArgs("+31610000000").WillReturnRows(rows)
	f.mock.ExpectExec(`UPDATE subscribers`).WithArgs("+31610000000", false, true).WillReturnResult(sqlmock.NewResult(0, 1))

	rr := f.do(webhookRequest(`{"originator": "+31610000000", "body": "STOP", "id": "abc"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, f.sender.Sent, 1)
	assert.Equal(t, subscription.MessageUnsubscribed, f.sender.Sent[0].Body)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWebhookUnknownKeyword(t *testing.T) {
	f := newFixture(t, false)

	rows := sqlmock.NewRows([]string{"number", "subscribed"}).AddRow("+31610000000", true)
	f.mock.ExpectQuery(selectSubscriber).WithArgs("+31610000000").WillReturnRows(rows)

	rr := f.do(webhookRequest(`{"originator": "+31610000000", "body": "hello"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, f.sender.Calls())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWebhookStoreFailureStillOK(t *testing.T) {
	f := newFixture(t, false)

	f.mock.ExpectQuery(selectSubscriber).WillReturnError(errors.New("connection refused"))

	rr := f.do(webhookRequest(`{"originator": "+31610000000", "body": "subscribe"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, f.sender.Calls())
}

func TestWebhookMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"invalid json":       `{"originator":`,
		"missing originator": `{"body": "subscribe"}`,
		"missing body":       `{"originator": "+31610000000"}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, false)
			rr := f.do(webhookRequest(body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHome(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subscribers WHERE subscribed = TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `<strong id="count">42</strong>`)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHomeStoreError(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("connection refused"))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func subscribedRows(numbers []string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"number"})
	for _, n := range numbers {
		rows.AddRow(n)
	}
	return rows
}

func TestSend(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectQuery(`SELECT number FROM subscribers WHERE subscribed = TRUE`).
		WillReturnRows(subscribedRows(test.Numbers(120)))

	rr := f.do(sendRequest("Hello"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `<strong id="count">120</strong>`)
	assert.NotContains(t, rr.Body.String(), `id="failures"`)
	require.Len(t, f.sender.Sent, 3)
	assert.Len(t, f.sender.Sent[0].Recipients, 50)
	assert.Len(t, f.sender.Sent[1].Recipients, 50)
	assert.Len(t, f.sender.Sent[2].Recipients, 20)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSendReportsFailedGroups(t *testing.T) {
	f := newFixture(t, false)
	f.sender.FailOn = map[int]error{0: errors.New("rate limited")}
	f.mock.ExpectQuery(`SELECT number FROM subscribers`).WillReturnRows(subscribedRows(test.Numbers(60)))

	rr := f.do(sendRequest("Hello"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `<strong id="count">60</strong>`)
	assert.Contains(t, rr.Body.String(), "1 of 2 groups failed; 50 subscribers")
}

func TestSendSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectQuery(`SELECT number FROM subscribers`).WillReturnRows(subscribedRows(test.Numbers(120)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr := f.do(sendRequest("Hello").WithContext(ctx))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, f.sender.Calls())
	assert.NotContains(t, rr.Body.String(), `id="failures"`)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSendNoSubscribers(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectQuery(`SELECT number FROM subscribers`).WillReturnRows(subscribedRows(nil))

	rr := f.do(sendRequest("Hello"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `<strong id="count">0</strong>`)
	assert.Zero(t, f.sender.Calls())
}

func TestSendEmptyMessage(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(sendRequest("  "))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSendStoreError(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectQuery(`SELECT number FROM subscribers`).WillReturnError(errors.New("connection refused"))

	rr := f.do(sendRequest("Hello"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Zero(t, f.sender.Calls())
}

func TestSendQueued(t *testing.T) {
	f := newFixture(t, true)
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subscribers`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	rr := f.do(sendRequest("Hello"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "queued")
	assert.Contains(t, rr.Body.String(), `<strong id="count">7</strong>`)
	require.Len(t, f.enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeBroadcast, f.enqueuer.EnqueuedTasks[0].Type())
	assert.Zero(t, f.sender.Calls())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSendQueueUnavailable(t *testing.T) {
	f := newFixture(t, true)
	f.enqueuer.Err = errors.New("redis down")
	f.mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	rr := f.do(sendRequest("Hello"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterOperatorAuth(t *testing.T) {
	store, mock := test.NewMockDB(t)
	tmpl, err := web.Templates()
	require.NoError(t, err)
	sender := &test.MockSender{}
	log := zap.NewNop()
	h := New(tmpl, subscription.New(store, sender, "Acme", log), broadcast.NewBatcher(sender, "Acme", log), store, nil, log)
	router := h.Router(passThrough, middleware.BasicAuth("admin", "secret"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// The webhook is not behind operator auth.
	mock.ExpectQuery(selectSubscriber).WillReturnError(sql.ErrNoRows)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, webhookRequest(`{"originator": "+31610000000", "body": "hello"}`))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
