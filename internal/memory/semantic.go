package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entity is a single learned fact: subject-predicate-object, with
// supersession tracking so at most one entity for a given subject+predicate
// is ever active.
type Entity struct {
	ID            string
	Subject       string
	Predicate     string
	Object        string
	SessionKey    string
	LearnedAt     time.Time
	SupersededAt  *time.Time
	SupersededBy  string
	Confidence    float64
}

func (e Entity) active() bool { return e.SupersededAt == nil }

// Semantic is a fact store keyed by subject and predicate. When Enabled is
// false, Store and Query are no-ops, used to let an operator disable
// semantic memory without removing episodic/soul layers.
type Semantic struct {
	mu       sync.Mutex
	entities map[string][]*Entity // keyed by subject+"\x00"+predicate
	Enabled  bool
}

// NewSemantic builds a Semantic fact store.
func NewSemantic(enabled bool) *Semantic {
	return &Semantic{entities: make(map[string][]*Entity), Enabled: enabled}
}

func factKey(subject, predicate string) string {
	return strings.ToLower(subject) + "\x00" + strings.ToLower(predicate)
}

// Store records a new fact, superseding any currently active entity for the
// same subject and predicate.
func (s *Semantic) Store(subject, predicate, object, sessionKey string, confidence float64) Entity {
	if !s.Enabled {
		return Entity{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := factKey(subject, predicate)
	now := time.Now()

	e := &Entity{
		ID:         uuid.NewString(),
		Subject:    subject,
		Predicate:  predicate,
		Object:     object,
		SessionKey: sessionKey,
		LearnedAt:  now,
		Confidence: confidence,
	}

	if active := s.findActiveLocked(key); active != nil {
		t := now
		active.SupersededAt = &t
		active.SupersededBy = e.ID
	}

	s.entities[key] = append(s.entities[key], e)
	return *e
}

func (s *Semantic) findActiveLocked(key string) *Entity {
	for _, e := range s.entities[key] {
		if e.active() {
			return e
		}
	}
	return nil
}

// Query returns the active entity for subject+predicate, if any.
func (s *Semantic) Query(subject, predicate string) (Entity, bool) {
	if !s.Enabled {
		return Entity{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.findActiveLocked(factKey(subject, predicate)); e != nil {
		return *e, true
	}
	return Entity{}, false
}

// QuerySubject returns every active entity for subject, regardless of
// predicate.
func (s *Semantic) QuerySubject(subject string) []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entity
	subj := strings.ToLower(subject)
	for key, entries := range s.entities {
		if !strings.HasPrefix(key, subj+"\x00") {
			continue
		}
		for _, e := range entries {
			if e.active() {
				out = append(out, *e)
			}
		}
	}
	return out
}

// relevantEntity pairs an active entity with its keyword match score.
type relevantEntity struct {
	Entity Entity
	Score  int
}

// QueryRelevant scores every active entity against keywords using a
// bidirectional, case-insensitive substring match across subject,
// predicate, and object, and returns them sorted by descending score.
func (s *Semantic) QueryRelevant(keywords []string) []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scored []relevantEntity
	for _, entries := range s.entities {
		for _, e := range entries {
			if !e.active() {
				continue
			}
			score := 0
			for _, kw := range keywords {
				kw = strings.ToLower(kw)
				if kw == "" {
					continue
				}
				score += matchField(e.Subject, kw) + matchField(e.Predicate, kw) + matchField(e.Object, kw)
			}
			if score > 0 {
				scored = append(scored, relevantEntity{Entity: *e, Score: score})
			}
		}
	}

	// Stable descending sort by score (simple insertion sort; result sets
	// are small enough that this never needs to be fast).
	for i := 1; i < len(scored); i++ {
		j := i
		for j > 0 && scored[j-1].Score < scored[j].Score {
			scored[j-1], scored[j] = scored[j], scored[j-1]
			j--
		}
	}

	out := make([]Entity, len(scored))
	for i, r := range scored {
		out[i] = r.Entity
	}
	return out
}

func matchField(field, keyword string) int {
	field = strings.ToLower(field)
	if strings.Contains(field, keyword) || strings.Contains(keyword, field) {
		return 1
	}
	return 0
}

// AllActive returns every currently active entity across all subjects.
func (s *Semantic) AllActive() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entity
	for _, entries := range s.entities {
		for _, e := range entries {
			if e.active() {
				out = append(out, *e)
			}
		}
	}
	return out
}

// Count returns the total number of entities ever stored (active and
// superseded).
func (s *Semantic) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entries := range s.entities {
		n += len(entries)
	}
	return n
}

// ActiveCount returns the number of currently active entities.
func (s *Semantic) ActiveCount() int {
	return len(s.AllActive())
}
