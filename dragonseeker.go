/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

/*
Dragonseeker

Players join a game from a shared link or QR code. Once the host starts,
every player but one is dealt the same secret word; the dragon gets
nothing, and the knights get a related but different word. Players take
turns describing their word, then vote someone out. Voting out the dragon
gives it one chance to guess the word; a correct guess still wins it the
game. Voting out everyone else wins it the game outright.

The server is authoritative. Every mutation goes through the JSON API
below and the new public state is pushed to each connected websocket.
Private data (roles, words) only travels through per-player requests
authenticated by a signed token.
*/

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/dragonseeker/games/dragonseeker"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	maxBodyBytes    = 4 << 10
	wsSendBuffer    = 16
	wsReadLimit     = 512
	wsWriteDeadline = 10 * time.Second
	qrSize          = 320
)

var errClientClosed = errors.New("client closed")

type gameServer struct {
	cfg      *Config
	registry *dragonseeker.Registry
	tokens   *tokenIssuer
}

type nameRequest struct {
	Name string `json:"name"`
}

type timerRequest struct {
	TimerSeconds *int `json:"timer_seconds"`
}

type voteRequest struct {
	TargetID string `json:"target_id"`
}

type guessRequest struct {
	Guess string `json:"guess"`
}

type joinResponse struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	IsHost   bool   `json:"is_host"`
	Token    string `json:"token"`
	GameURL  string `json:"game_url"`
}

type statusResponse struct {
	Status       string `json:"status"`
	TimerSeconds *int   `json:"timer_seconds,omitempty"`
}

type timerResponse struct {
	Running       bool               `json:"running"`
	TimeRemaining *int               `json:"time_remaining,omitempty"` // unset when no countdown is running
	Expired       bool               `json:"expired"`
	Phase         dragonseeker.Phase `json:"phase"`
}

type voteResponse struct {
	Status       string              `json:"status"`
	VotesCast    int                 `json:"votes_cast"`
	AlivePlayers int                 `json:"alive_players"`
	Eliminated   string              `json:"eliminated,omitempty"`
	Tie          bool                `json:"tie"`
	Phase        dragonseeker.Phase  `json:"phase"`
	Winner       dragonseeker.Winner `json:"winner,omitempty"`
}

type guessResponse struct {
	Correct bool                `json:"correct"`
	Winner  dragonseeker.Winner `json:"winner"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logf(cfg, "ERROR: Encoding response for %s: %v", r.URL.Path, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	written, _ := w.Write(append(body, '\n'))

	logf(cfg, "SERVE: %s %s (%d bytes, %d) to %s", r.Method, r.URL.Path, written, status, realIP(r))
}

// decodeBody reads an optional JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}

func (gs *gameServer) gameURL(r *http.Request, gameID string) string {
	scheme := gs.cfg.scheme()
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + gs.cfg.prefix + "/game/" + gameID
}

// admit issues a token for a newly seated player.
func (gs *gameServer) admit(w http.ResponseWriter, r *http.Request, gameID, playerID string, isHost bool) {
	token, expires, err := gs.tokens.issue(gameID, playerID)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	setTokenCookie(gs.cfg, w, playerID, token, expires)

	writeJSON(gs.cfg, w, r, http.StatusCreated, joinResponse{
		GameID:   gameID,
		PlayerID: playerID,
		IsHost:   isHost,
		Token:    token,
		GameURL:  gs.gameURL(r, gameID),
	})
}

// authorize resolves the game and the calling player, whose token must
// match both.
func (gs *gameServer) authorize(r *http.Request, ps httprouter.Params) (*dragonseeker.Session, string, error) {
	gameID := ps.ByName("gameid")

	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		return nil, "", fmt.Errorf("%w: missing player_id", errBadRequest)
	}

	if err := gs.tokens.verify(tokenFromRequest(r, playerID), gameID, playerID); err != nil {
		return nil, "", err
	}

	s, err := gs.registry.Lookup(gameID)
	if err != nil {
		return nil, "", err
	}

	return s, playerID, nil
}

func (gs *gameServer) createGame(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req nameRequest
	if err := decodeBody(w, r, &req); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	gameID, hostID, err := gs.registry.CreateSession(req.Name)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	gs.admit(w, r, gameID, hostID, true)
}

func (gs *gameServer) joinGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req nameRequest
	if err := decodeBody(w, r, &req); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	s, err := gs.registry.Lookup(ps.ByName("gameid"))
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	playerID, err := s.Join(req.Name)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	logf(gs.cfg, "GAMES: Player joined game %s from %s", s.ID(), realIP(r))

	s.Publish()

	gs.admit(w, r, s.ID(), playerID, false)
}

func (gs *gameServer) setTimer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, playerID, err := gs.authorize(r, ps)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	var req timerRequest
	if err := decodeBody(w, r, &req); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	if err := s.SetVotingTimer(playerID, req.TimerSeconds); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	s.Publish()

	writeJSON(gs.cfg, w, r, http.StatusOK, statusResponse{Status: "timer_set", TimerSeconds: req.TimerSeconds})
}

func (gs *gameServer) startGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, playerID, err := gs.authorize(r, ps)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	if err := s.StartGame(playerID); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	logf(gs.cfg, "GAMES: Started game %s with %d players", s.ID(), s.PlayerCount())

	s.Publish()

	writeJSON(gs.cfg, w, r, http.StatusOK, statusResponse{Status: "started"})
}

func (gs *gameServer) startVoting(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, playerID, err := gs.authorize(r, ps)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	if err := s.TransitionToVoting(playerID); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	s.Publish()

	resp := statusResponse{Status: "voting_started"}
	if secs, ok := s.TimerSeconds(); ok {
		resp.TimerSeconds = &secs
	}

	writeJSON(gs.cfg, w, r, http.StatusOK, resp)
}

// pollTimer needs no token: it reveals nothing private, and any client may
// end an expired round.
func (gs *gameServer) pollTimer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, err := gs.registry.Lookup(ps.ByName("gameid"))
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		serveError(gs.cfg, w, r, fmt.Errorf("%w: missing player_id", errBadRequest))

		return
	}

	st, err := s.PollTimer(playerID)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	if st.Expired {
		logf(gs.cfg, "GAMES: Voting timer expired in game %s", s.ID())

		s.Publish()
	}

	resp := timerResponse{
		Running: st.Running,
		Expired: st.Expired,
		Phase:   st.Phase,
	}
	if st.Running || st.Expired {
		resp.TimeRemaining = &st.Remaining
	}

	writeJSON(gs.cfg, w, r, http.StatusOK, resp)
}

func (gs *gameServer) vote(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, playerID, err := gs.authorize(r, ps)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	var req voteRequest
	if err := decodeBody(w, r, &req); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	out, err := s.SubmitVote(playerID, req.TargetID)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	s.Publish()

	resp := voteResponse{
		Status:       "vote_submitted",
		VotesCast:    out.VotesCast,
		AlivePlayers: out.AlivePlayers,
		Phase:        out.Phase,
		Winner:       out.Winner,
	}
	if out.Complete {
		resp.Status = "vote_complete"
		resp.Eliminated = out.Tally.Eliminated
		resp.Tie = out.Tally.Tie
	}

	writeJSON(gs.cfg, w, r, http.StatusOK, resp)
}

func (gs *gameServer) guess(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, playerID, err := gs.authorize(r, ps)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	var req guessRequest
	if err := decodeBody(w, r, &req); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	out, err := s.GuessWord(playerID, req.Guess)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	logf(gs.cfg, "GAMES: Game %s won by %s", s.ID(), out.Winner)

	s.Publish()

	writeJSON(gs.cfg, w, r, http.StatusOK, guessResponse{Correct: out.Correct, Winner: out.Winner})
}

func (gs *gameServer) state(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, playerID, err := gs.authorize(r, ps)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	view, err := s.View(playerID)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	writeJSON(gs.cfg, w, r, http.StatusOK, view)
}

// wsClient is one websocket connection subscribed to a game.
type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	playerID string

	mu     sync.Mutex
	closed bool
}

// Deliver queues payload without blocking. A client that has fallen a full
// buffer behind is dropped.
func (c *wsClient) Deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("send buffer full for player %s", c.playerID)
	}
}

func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) readPump() {
	c.conn.SetReadLimit(wsReadLimit)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))

		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// subscribe registers sub for s and then queues playerID's current view.
// Taking the view after subscribing means a mutation landing in between is
// either in the view or in a later broadcast; stale frames carry a lower
// version and are ignored by the client.
func (gs *gameServer) subscribe(s *dragonseeker.Session, playerID string, sub dragonseeker.Subscriber) {
	b := gs.registry.Broadcaster()
	b.Subscribe(s.ID(), sub)

	// The game may have been evicted since it was looked up; its topic is gone.
	if _, ok := gs.registry.Get(s.ID()); !ok {
		b.Close(s.ID())

		return
	}

	view, err := s.View(playerID)
	if err != nil {
		b.Unsubscribe(s.ID(), sub)
		sub.Close()

		return
	}

	payload, err := json.Marshal(view)
	if err != nil {
		logf(gs.cfg, "ERROR: Encoding view for game %s: %v", s.ID(), err)

		return
	}

	_ = sub.Deliver(payload)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (gs *gameServer) serveWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, playerID, err := gs.authorize(r, ps)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	if _, err := s.View(playerID); err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf(gs.cfg, "ERROR: Websocket upgrade from %s: %v", realIP(r), err)

		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		playerID: playerID,
	}

	b := gs.registry.Broadcaster()
	gs.subscribe(s, playerID, client)

	logf(gs.cfg, "GAMES: Websocket opened for game %s from %s", s.ID(), realIP(r))

	go client.writePump()
	client.readPump()

	b.Unsubscribe(s.ID(), client)
	client.Close()

	logf(gs.cfg, "GAMES: Websocket closed for game %s from %s", s.ID(), realIP(r))
}

func (gs *gameServer) serveQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if _, ok := gs.registry.Get(gameID); !ok {
		http.NotFound(w, r)

		return
	}

	png, err := qrcode.Encode(gs.gameURL(r, gameID), qrcode.Medium, qrSize)
	if err != nil {
		serveError(gs.cfg, w, r, err)

		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	securityHeaders(gs.cfg, w)

	_, _ = w.Write(png)
}

func (gs *gameServer) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(gs.cfg, w, r, http.StatusOK, struct {
		Status string `json:"status"`
		dragonseeker.Stats
	}{
		Status: "healthy",
		Stats:  gs.registry.Stats(),
	})
}

// registerGame sets up routes so that:
//   - /game/:gameid          → HTML client
//   - /game/:gameid/ws       → websocket for that game
//   - /game/:gameid/qr       → PNG QR code for the join link
//   - /api/games/...         → JSON game actions
func registerGame(cfg *Config, gs *gameServer, mux *httprouter.Router) {
	p := cfg.prefix

	mux.GET(p+"/game/:gameid", serveHomePage(cfg))
	mux.GET(p+"/game/:gameid/ws", gs.serveWS)
	mux.GET(p+"/game/:gameid/qr", gs.serveQR)

	mux.POST(p+"/api/games", gs.createGame)
	mux.POST(p+"/api/games/:gameid/join", gs.joinGame)
	mux.POST(p+"/api/games/:gameid/timer", gs.setTimer)
	mux.GET(p+"/api/games/:gameid/timer", gs.pollTimer)
	mux.POST(p+"/api/games/:gameid/start", gs.startGame)
	mux.POST(p+"/api/games/:gameid/start-voting", gs.startVoting)
	mux.POST(p+"/api/games/:gameid/vote", gs.vote)
	mux.POST(p+"/api/games/:gameid/guess", gs.guess)
	mux.GET(p+"/api/games/:gameid/state", gs.state)

	mux.GET(p+"/health", gs.serveHealth)
}

