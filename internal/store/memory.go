package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int
	users    map[string]*User
	books    map[string]*Book
	chunks   map[string]*Chunk
	chapters map[string]*Chapter
	claims   map[string]*Claim
	ideas    map[string]*Idea
	outputs  map[string]*FinalOutput // keyed by book id
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		books:    make(map[string]*Book),
		chunks:   make(map[string]*Chunk),
		chapters: make(map[string]*Chapter),
		claims:   make(map[string]*Claim),
		ideas:    make(map[string]*Idea),
		outputs:  make(map[string]*FinalOutput),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return "", fmt.Errorf("email already registered")
		}
	}
	cp := *u
	cp.ID = s.newID("user")
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.users[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateBook(ctx context.Context, b *Book) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	cp.ID = s.newID("book")
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.books[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemoryStore) GetBook(ctx context.Context, id string) (*Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) ListBooks(ctx context.Context, userID string) ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var books []Book
	for _, b := range s.books {
		if userID == "" || b.UserID == userID {
			books = append(books, *b)
		}
	}
	sort.Slice(books, func(i, j int) bool {
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})
	return books, nil
}

func (s *MemoryStore) UpdateBook(ctx context.Context, id string, upd BookUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.Author != nil {
		b.Author = *upd.Author
	}
	if upd.PageCount != nil {
		b.PageCount = *upd.PageCount
	}
	if upd.OriginalWordCount != nil {
		b.OriginalWordCount = *upd.OriginalWordCount
	}
	if upd.Status != nil {
		b.Status = *upd.Status
	}
	if upd.CurrentStep != nil {
		b.CurrentStep = *upd.CurrentStep
	}
	if upd.Progress != nil {
		b.Progress = *upd.Progress
	}
	if upd.ErrorMessage != nil {
		b.ErrorMessage = *upd.ErrorMessage
	}
	if upd.ProcessingStartedAt != nil {
		t := *upd.ProcessingStartedAt
		b.ProcessingStartedAt = &t
	}
	if upd.ProcessingCompletedAt != nil {
		t := *upd.ProcessingCompletedAt
		b.ProcessingCompletedAt = &t
	}
	if upd.ClearProcessingTimes {
		b.ProcessingCompletedAt = nil
		b.ErrorMessage = ""
	}
	if upd.TotalChunks != nil {
		b.TotalChunks = *upd.TotalChunks
	}
	if upd.TotalChapters != nil {
		b.TotalChapters = *upd.TotalChapters
	}
	if upd.DensityScore != nil {
		b.DensityScore = *upd.DensityScore
	}
	if upd.RecommendedCompression != nil {
		b.RecommendedCompression = *upd.RecommendedCompression
	}
	if upd.ExtractionMethod != nil {
		b.ExtractionMethod = *upd.ExtractionMethod
	}
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return ErrNotFound
	}
	delete(s.books, id)
	for cid, c := range s.chunks {
		if c.BookID == id {
			delete(s.chunks, cid)
		}
	}
	for cid, c := range s.chapters {
		if c.BookID == id {
			delete(s.chapters, cid)
		}
	}
	for cid, c := range s.claims {
		if c.BookID == id {
			delete(s.claims, cid)
		}
	}
	for iid, i := range s.ideas {
		if i.BookID == id {
			delete(s.ideas, iid)
		}
	}
	delete(s.outputs, id)
	return nil
}

func (s *MemoryStore) CreateChunks(ctx context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		cp := c
		cp.ID = s.newID("chunk")
		s.chunks[cp.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) ListChunks(ctx context.Context, bookID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chunks []Chunk
	for _, c := range s.chunks {
		if c.BookID == bookID {
			chunks = append(chunks, *c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (s *MemoryStore) CreateChapters(ctx context.Context, chapters []Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chapters {
		cp := ch
		cp.ID = s.newID("chapter")
		s.chapters[cp.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) ListChapters(ctx context.Context, bookID string) ([]Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chapters []Chapter
	for _, ch := range s.chapters {
		if ch.BookID == bookID {
			chapters = append(chapters, *ch)
		}
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Index < chapters[j].Index })
	return chapters, nil
}

func (s *MemoryStore) UpdateChapter(ctx context.Context, id string, upd ChapterUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chapters[id]
	if !ok {
		return ErrNotFound
	}
	if upd.CompressedContent != nil {
		ch.CompressedContent = *upd.CompressedContent
	}
	if upd.KeyInsights != nil {
		ch.KeyInsights = append([]string(nil), (*upd.KeyInsights)...)
	}
	if upd.CompressedTokenCount != nil {
		ch.CompressedTokenCount = *upd.CompressedTokenCount
	}
	return nil
}

func (s *MemoryStore) CreateClaims(ctx context.Context, claims []Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range claims {
		cp := c
		cp.ID = s.newID("claim")
		s.claims[cp.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) ListClaims(ctx context.Context, bookID string) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var claims []Claim
	for _, c := range s.claims {
		if c.BookID == bookID {
			claims = append(claims, *c)
		}
	}
	// IDs are claim-N; shorter means earlier, so this is insertion order.
	sort.Slice(claims, func(i, j int) bool {
		if len(claims[i].ID) != len(claims[j].ID) {
			return len(claims[i].ID) < len(claims[j].ID)
		}
		return claims[i].ID < claims[j].ID
	})
	return claims, nil
}

func (s *MemoryStore) UpdateClaim(ctx context.Context, id string, upd ClaimUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Label != nil {
		c.Label = *upd.Label
	}
	if upd.Score != nil {
		c.Score = *upd.Score
	}
	if upd.Reason != nil {
		c.Reason = *upd.Reason
	}
	return nil
}

func (s *MemoryStore) CreateIdeas(ctx context.Context, ideas []Idea) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idea := range ideas {
		cp := idea
		cp.ID = s.newID("idea")
		s.ideas[cp.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) ListIdeas(ctx context.Context, bookID string) ([]Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ideas []Idea
	for _, i := range s.ideas {
		if i.BookID == bookID {
			ideas = append(ideas, *i)
		}
	}
	sort.Slice(ideas, func(i, j int) bool { return ideas[i].Index < ideas[j].Index })
	return ideas, nil
}

func (s *MemoryStore) DeleteIdeas(ctx context.Context, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, i := range s.ideas {
		if i.BookID == bookID {
			delete(s.ideas, id)
		}
	}
	return nil
}

func (s *MemoryStore) UpsertFinalOutput(ctx context.Context, out *FinalOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.outputs[out.BookID]
	if ok {
		out.ID = existing.ID
	} else {
		out.ID = s.newID("output")
	}
	cp := *out
	s.outputs[out.BookID] = &cp
	return nil
}

func (s *MemoryStore) GetFinalOutput(ctx context.Context, bookID string) (*FinalOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[bookID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *out
	return &cp, nil
}
