package app

import (
	"math"
	"sort"
	"time"

	"quiz-live-service/internal/domain"
)

// PlayerState is one participant's standing inside a live session.
type PlayerState struct {
	PlayerID     int64
	UserID       *int64
	SessionID    string
	Nickname     string
	Score        int
	Answers      map[int64]domain.Answer
	IsActive     bool
	JoinedAt     time.Time
	LastSeen     time.Time
	LastAnswerAt time.Time
}

func (p *PlayerState) isGuest() bool { return p.UserID == nil }

// GameSession is one live play-through of a question set. All fields
// are guarded by the owning SessionStore's lock; methods suffixed
// Locked must only be called while that lock is held.
type GameSession struct {
	ID             int64
	Code           string
	HostSessionID  string
	HostUserID     int64
	QuestionSetID  int64
	TotalQuestions int
	CurrentIndex   int // -1 before the first question
	Phase          domain.Phase
	Current        *domain.Question
	QuestionStart  time.Time
	QuestionLimit  time.Duration
	StartedAt      time.Time
	EndedAt        time.Time
	Players        map[string]*PlayerState // keyed by session id
}

// isHostConn is the single capability check for host-only commands.
func (g *GameSession) isHostConn(info ConnInfo) bool {
	return info.UserID != nil && *info.UserID == g.HostUserID
}

// expiredLocked reports whether the active question has run out of time.
func (g *GameSession) expiredLocked(now time.Time) bool {
	return g.Phase == domain.PhaseQuestion &&
		!g.QuestionStart.IsZero() &&
		now.Sub(g.QuestionStart) >= g.QuestionLimit
}

// recipientsLocked collects the session ids to fan a broadcast out to:
// every active player plus the host.
func (g *GameSession) recipientsLocked() []string {
	ids := make([]string, 0, len(g.Players)+1)
	for id, p := range g.Players {
		if p.IsActive {
			ids = append(ids, id)
		}
	}
	if g.HostSessionID != "" {
		ids = append(ids, g.HostSessionID)
	}
	return ids
}

// lobbyPlayersLocked lists active players for lobby_update.
func (g *GameSession) lobbyPlayersLocked() []domain.PlayerInfo {
	players := make([]domain.PlayerInfo, 0, len(g.Players))
	for _, p := range g.Players {
		if !p.IsActive {
			continue
		}
		players = append(players, domain.PlayerInfo{
			PlayerID: p.PlayerID,
			Nickname: p.Nickname,
			IsGuest:  p.isGuest(),
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Nickname < players[j].Nickname })
	return players
}

// leaderboardLocked snapshots active players ordered by descending
// score; ties go to whoever reached their score first, then by name.
func (g *GameSession) leaderboardLocked() []domain.LeaderboardEntry {
	type ranked struct {
		entry  domain.LeaderboardEntry
		lastAt time.Time
	}
	rows := make([]ranked, 0, len(g.Players))
	for _, p := range g.Players {
		if !p.IsActive {
			continue
		}
		rows = append(rows, ranked{
			entry: domain.LeaderboardEntry{
				PlayerID: p.PlayerID,
				Nickname: p.Nickname,
				Score:    p.Score,
				IsGuest:  p.isGuest(),
			},
			lastAt: p.LastAnswerAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.Score != rows[j].entry.Score {
			return rows[i].entry.Score > rows[j].entry.Score
		}
		if !rows[i].lastAt.Equal(rows[j].lastAt) {
			return rows[i].lastAt.Before(rows[j].lastAt)
		}
		return rows[i].entry.Nickname < rows[j].entry.Nickname
	})
	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.entry
	}
	return entries
}

// playerStatsLocked computes the game_end performance report.
func (g *GameSession) playerStatsLocked() []domain.PlayerStats {
	stats := make([]domain.PlayerStats, 0, len(g.Players))
	for _, p := range g.Players {
		if !p.IsActive {
			continue
		}
		s := domain.PlayerStats{
			PlayerID: p.PlayerID,
			Nickname: p.Nickname,
			Score:    p.Score,
			Answers:  len(p.Answers),
		}
		totalMs := 0
		for _, a := range p.Answers {
			if a.IsCorrect {
				s.Correct++
			}
			totalMs += a.ResponseTimeMs
		}
		if s.Answers > 0 {
			s.Accuracy = math.Round(float64(s.Correct) / float64(s.Answers) * 100)
			s.AvgResponseTimeMs = math.Round(float64(totalMs) / float64(s.Answers))
		}
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Score != stats[j].Score {
			return stats[i].Score > stats[j].Score
		}
		return stats[i].Nickname < stats[j].Nickname
	})
	return stats
}
