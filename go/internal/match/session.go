package match

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/shuuro/go/internal/board"
	"github.com/mcdev12/shuuro/go/internal/match/clock"
	"github.com/mcdev12/shuuro/go/internal/models"
)

// UpdateKind names the command or event that changed a match.
type UpdateKind int

const (
	UpdateBuy UpdateKind = iota
	UpdateConfirm
	UpdatePlace
	UpdatePlay
	UpdateDraw
	UpdateResign
	UpdateTimeout
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateBuy:
		return "buy"
	case UpdateConfirm:
		return "confirm"
	case UpdatePlace:
		return "place"
	case UpdatePlay:
		return "play"
	case UpdateDraw:
		return "draw"
	case UpdateResign:
		return "resign"
	case UpdateTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Update describes one accepted change. Match is a snapshot taken right after
// the change; Clocks holds the live remaining time of both sides.
type Update struct {
	Kind         UpdateKind
	Side         models.Side
	Move         string
	Match        models.Match
	Clocks       [2]time.Duration
	StageChanged bool
	Ended        bool
	// Ply is set when the change appended to the move history.
	Ply *models.Ply
	// ActiveGames is filled in by the registry once the match has ended.
	ActiveGames int
}

// Variant binds a variant name to a board family and a shop budget.
type Variant struct {
	Name    string
	Family  string
	Credits int
}

// TimeControl is base minutes per side plus an increment in seconds.
type TimeControl struct {
	Minutes   int
	Increment int
}

// Session is the authoritative state of one match. All commands are
// serialized by its mutex; a rejected command leaves the state untouched.
type Session struct {
	mu     sync.Mutex
	clk    clockwork.Clock
	family board.Family
	clocks *clock.Controller
	shop   board.Shop
	// pos is the deploy board, then the fight board.
	pos board.Position
	doc models.Match

	onUpdate func(Update)
}

// NewSession starts a match in the shop stage.
func NewSession(id string, v Variant, fam board.Family, players [2]string, tc TimeControl, clk clockwork.Clock) *Session {
	now := clk.Now()
	return &Session{
		clk:    clk,
		family: fam,
		clocks: clock.New(clk, time.Duration(tc.Minutes)*time.Minute, time.Duration(tc.Increment)*time.Second),
		shop:   fam.NewShop(v.Credits),
		doc: models.Match{
			ID:        id,
			Variant:   v.Name,
			Family:    fam.Name(),
			Players:   players,
			Stage:     models.StageShop,
			Status:    models.StatusPreparing,
			Minutes:   tc.Minutes,
			Increment: tc.Increment,
			Credits:   v.Credits,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// RestoreSession rebuilds an unfinished match by replaying its history. The
// clock continues from the persisted last click.
func RestoreSession(doc models.Match, fam board.Family, clk clockwork.Clock) (*Session, error) {
	if doc.Status.Finished() || doc.Stage == models.StageEnded {
		return nil, fmt.Errorf("match %s is already finished", doc.ID)
	}

	s := &Session{
		clk:    clk,
		family: fam,
		shop:   fam.NewShop(doc.Credits),
		doc:    doc,
	}

	for _, mv := range doc.History.Shop {
		side, piece, ok := parseShopMove(mv)
		if !ok {
			return nil, fmt.Errorf("failed to replay shop move %q", mv)
		}
		if _, bought := s.shop.Buy(side, piece); !bought {
			return nil, fmt.Errorf("failed to replay shop move %q", mv)
		}
	}
	for side, confirmed := range doc.Confirmed {
		if confirmed {
			s.shop.Confirm(models.Side(side))
		}
	}

	if doc.Stage >= models.StageDeploy {
		pos, err := fam.NewDeploy(doc.DeployHands)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild deploy board: %w", err)
		}
		if err := replay(pos, doc.History.Deploy); err != nil {
			return nil, err
		}
		s.pos = pos
	}
	if doc.Stage >= models.StageFight {
		pos, err := fam.NewFight(doc.FightStart)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild fight board: %w", err)
		}
		if err := replay(pos, doc.History.Fight); err != nil {
			return nil, err
		}
		s.pos = pos
	}

	s.clocks = clock.Restore(clk, doc.Clock, doc.Stage)
	return s, nil
}

func replay(pos board.Position, moves []string) error {
	for _, mv := range moves {
		if _, err := pos.Apply(pos.SideToMove(), mv); err != nil {
			return fmt.Errorf("failed to replay move %q: %w", mv, err)
		}
	}
	return nil
}

// ID returns the match id.
func (s *Session) ID() string {
	return s.doc.ID
}

// Players returns the white and black identities.
func (s *Session) Players() [2]string {
	return s.doc.Players
}

// SideOf returns the side played by user.
func (s *Session) SideOf(user string) (models.Side, bool) {
	return s.doc.SideOf(user)
}

// Snapshot returns a copy of the current match document.
func (s *Session) Snapshot() models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Hand returns the pieces side holds and the credits it has left.
func (s *Session) Hand(side models.Side) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos != nil {
		return s.pos.Hand(side), s.shop.Credits(side)
	}
	return s.shop.Hand(side), s.shop.Credits(side)
}

// Confirmed returns the shop confirmation flags.
func (s *Session) Confirmed() [2]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Confirmed
}

// Ended reports whether the match is over.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Stage == models.StageEnded
}

// Clocks returns the live remaining time of both sides.
func (s *Session) Clocks() [2]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveClocks()
}

// Buy purchases a piece during the shop stage. A candidate the shop does not
// recognize confirms the buyer's army instead.
func (s *Session) Buy(side models.Side, candidate string) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Stage != models.StageShop || s.doc.Confirmed[side] {
		return Update{}, false
	}
	if _, ok := s.clocks.CurrentRemaining(side); !ok {
		return Update{}, false
	}

	valid, ok := s.shop.Buy(side, candidate)
	if !valid {
		log.Debug().Str("match_id", s.doc.ID).Str("candidate", candidate).Msg("malformed buy, confirming")
		return s.confirm(side)
	}
	if !ok {
		return Update{}, false
	}

	move := shopMove(side, candidate)
	s.doc.History.Shop = append(s.doc.History.Shop, move)
	s.doc.DrawOffers = [2]bool{}
	return s.commit(Update{
		Kind: UpdateBuy,
		Side: side,
		Move: move,
		Ply:  &models.Ply{Stage: models.StageShop, Move: move},
	})
}

// Confirm ends side's shopping. The deploy stage starts once both sides confirmed.
func (s *Session) Confirm(side models.Side) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Stage != models.StageShop || s.doc.Confirmed[side] {
		return Update{}, false
	}
	return s.confirm(side)
}

func (s *Session) confirm(side models.Side) (Update, bool) {
	if _, ok := s.clocks.Click(side); !ok {
		return Update{}, false
	}
	s.shop.Confirm(side)
	s.doc.Confirmed[side] = true

	u := Update{Kind: UpdateConfirm, Side: side}
	if !s.doc.Confirmed[side.Other()] {
		return s.commit(u)
	}

	hands := [2]string{s.shop.Hand(models.White), s.shop.Hand(models.Black)}
	pos, err := s.family.NewDeploy(hands)
	if err != nil {
		log.Error().Err(err).Str("match_id", s.doc.ID).Msg("failed to start deploy stage")
		return s.commit(u)
	}
	s.pos = pos
	s.doc.DeployHands = hands
	s.doc.Stage = models.StageDeploy
	s.clocks.AdvanceStage(models.StageDeploy)
	u.StageChanged = true
	return s.commit(u)
}

// Place puts a piece from side's hand on the board. The fight starts once
// both hands are empty.
func (s *Session) Place(side models.Side, move string) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Stage != models.StageDeploy || s.pos.SideToMove() != side {
		return Update{}, false
	}
	if _, ok := s.clocks.CurrentRemaining(side); !ok {
		return Update{}, false
	}
	serialized, err := s.pos.Apply(side, move)
	if err != nil {
		log.Debug().Str("match_id", s.doc.ID).Str("move", move).Msg("placement rejected")
		return Update{}, false
	}

	s.clocks.Click(side)
	s.doc.History.Deploy = append(s.doc.History.Deploy, move)
	s.doc.DrawOffers = [2]bool{}

	u := Update{
		Kind: UpdatePlace,
		Side: side,
		Move: move,
		Ply:  &models.Ply{Stage: models.StageDeploy, Move: move},
	}
	if s.pos.StageComplete() {
		s.startFight(serialized, side, &u)
	}
	return s.commit(u)
}

func (s *Session) startFight(serialized string, lastPlacer models.Side, u *Update) {
	fight, err := s.family.NewFight(serialized)
	if err != nil {
		log.Error().Err(err).Str("match_id", s.doc.ID).Msg("failed to start fight stage")
		return
	}
	s.pos = fight
	s.doc.FightStart = serialized
	s.doc.Stage = models.StageFight
	s.doc.Status = models.StatusFighting
	s.clocks.AdvanceStage(models.StageFight)
	u.StageChanged = true

	// a king attacked straight out of deployment is the last placer's fault
	if fight.InCheck(models.White) || fight.InCheck(models.Black) {
		s.end(models.StatusFirstMoveError, models.ResultFor(lastPlacer.Other()), u)
	}
}

// Play makes a fight move for side.
func (s *Session) Play(side models.Side, move string) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Stage != models.StageFight || s.pos.SideToMove() != side {
		return Update{}, false
	}
	if _, ok := s.clocks.CurrentRemaining(side); !ok {
		return Update{}, false
	}
	if _, err := s.pos.Apply(side, move); err != nil {
		log.Debug().Str("match_id", s.doc.ID).Str("move", move).Msg("move rejected")
		return Update{}, false
	}

	s.clocks.Click(side)
	s.doc.History.Fight = append(s.doc.History.Fight, move)
	s.doc.DrawOffers = [2]bool{}

	u := Update{
		Kind: UpdatePlay,
		Side: side,
		Move: move,
		Ply:  &models.Ply{Stage: models.StageFight, Move: move},
	}
	if out := s.pos.Outcome(); out.Terminal() {
		status, result := outcomeStatus(out)
		s.end(status, result, &u)
	}
	return s.commit(u)
}

// OfferDraw records side's draw offer. The match is drawn when both sides
// have an offer standing.
func (s *Session) OfferDraw(side models.Side) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Stage == models.StageEnded || s.doc.DrawOffers[side] {
		return Update{}, false
	}
	s.doc.DrawOffers[side] = true

	u := Update{Kind: UpdateDraw, Side: side}
	if s.doc.DrawOffers[side.Other()] {
		s.end(models.StatusDrawAgreed, models.ResultDraw, &u)
	}
	return s.commit(u)
}

// Resign ends the match in favour of side's opponent.
func (s *Session) Resign(side models.Side) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Stage == models.StageEnded {
		return Update{}, false
	}
	u := Update{Kind: UpdateResign, Side: side}
	s.end(models.StatusResign, models.ResultFor(side.Other()), &u)
	return s.commit(u)
}

// CheckTimeout ends the match if a running clock has expired. During the
// shop every unconfirmed side is running; two expired clocks draw.
func (s *Session) CheckTimeout() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired [2]bool
	switch s.doc.Stage {
	case models.StageEnded:
		return Update{}, false
	case models.StageShop:
		for side := range expired {
			if !s.doc.Confirmed[side] {
				_, ok := s.clocks.CurrentRemaining(models.Side(side))
				expired[side] = !ok
			}
		}
	default:
		mover := s.pos.SideToMove()
		_, ok := s.clocks.CurrentRemaining(mover)
		expired[mover] = !ok
	}

	u := Update{Kind: UpdateTimeout}
	switch {
	case expired[models.White] && expired[models.Black]:
		s.end(models.StatusDrawOnTime, models.ResultDraw, &u)
	case expired[models.White]:
		u.Side = models.White
		s.end(models.StatusLostOnTime, models.ResultBlack, &u)
	case expired[models.Black]:
		u.Side = models.Black
		s.end(models.StatusLostOnTime, models.ResultWhite, &u)
	default:
		return Update{}, false
	}
	return s.commit(u)
}

func (s *Session) end(status models.MatchStatus, result string, u *Update) {
	running := models.White
	if s.pos != nil {
		running = s.pos.SideToMove()
	}
	s.clocks.Stop(running)
	s.doc.Stage = models.StageEnded
	s.doc.Status = status
	s.doc.Result = result
	u.Ended = true
}

func (s *Session) commit(u Update) (Update, bool) {
	u.Match = s.snapshot()
	u.Clocks = s.liveClocks()
	if u.Ply != nil {
		u.Ply.Clock = u.Match.Clock
	}
	if s.onUpdate != nil {
		s.onUpdate(u)
	}
	return u, true
}

func (s *Session) snapshot() models.Match {
	m := s.doc
	m.Clock = s.clocks.Record()
	m.History = models.History{
		Shop:   cloneMoves(s.doc.History.Shop),
		Deploy: cloneMoves(s.doc.History.Deploy),
		Fight:  cloneMoves(s.doc.History.Fight),
	}
	if s.pos != nil {
		m.Position = s.pos.Serialize()
		m.SideToMove = s.pos.SideToMove()
		m.Hands = [2]string{s.pos.Hand(models.White), s.pos.Hand(models.Black)}
	} else {
		m.Hands = [2]string{s.shop.Hand(models.White), s.shop.Hand(models.Black)}
	}
	m.UpdatedAt = s.clk.Now()
	return m
}

func (s *Session) liveClocks() [2]time.Duration {
	clocks := s.clocks.Stored()
	switch s.doc.Stage {
	case models.StageEnded:
	case models.StageShop:
		for side := range clocks {
			clocks[side], _ = s.clocks.CurrentRemaining(models.Side(side))
		}
	default:
		mover := s.pos.SideToMove()
		clocks[mover], _ = s.clocks.CurrentRemaining(mover)
	}
	return clocks
}

func outcomeStatus(out board.Outcome) (models.MatchStatus, string) {
	switch out.Kind {
	case board.Checkmate:
		return models.StatusCheckmate, models.ResultFor(out.Winner)
	case board.Stalemate:
		return models.StatusStalemate, models.ResultDraw
	case board.DrawByMaterial:
		return models.StatusMaterial, models.ResultDraw
	default:
		return models.StatusRepetition, models.ResultDraw
	}
}

// shopMove encodes a purchase as "w:q" or "b:n".
func shopMove(side models.Side, candidate string) string {
	return side.String()[:1] + ":" + strings.ToLower(strings.TrimSpace(candidate))
}

func parseShopMove(mv string) (models.Side, string, bool) {
	prefix, piece, ok := strings.Cut(mv, ":")
	if !ok || piece == "" {
		return models.White, "", false
	}
	switch prefix {
	case "w":
		return models.White, piece, true
	case "b":
		return models.Black, piece, true
	default:
		return models.White, "", false
	}
}

func cloneMoves(moves []string) []string {
	return append([]string{}, moves...)
}
