package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/distill/internal/defra"
)

// Collection names in DefraDB.
const (
	colUser        = "User"
	colBook        = "Book"
	colChunk       = "Chunk"
	colChapter     = "Chapter"
	colClaim       = "Claim"
	colIdea        = "Idea"
	colFinalOutput = "FinalOutput"
)

// DefraStore is the DefraDB-backed Store.
type DefraStore struct {
	client *defra.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewDefraStore wraps a defra client as a Store.
func NewDefraStore(client *defra.Client, logger *slog.Logger) *DefraStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefraStore{
		client: client,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*DefraStore)(nil)

func (s *DefraStore) timestamp() string {
	return s.now().Format(time.RFC3339)
}

// --- users ---

func (s *DefraStore) CreateUser(ctx context.Context, u *User) (string, error) {
	input := map[string]any{
		"email":      u.Email,
		"name":       u.Name,
		"created_at": s.timestamp(),
		"updated_at": s.timestamp(),
	}
	if u.PasswordHash != "" {
		input["password_hash"] = u.PasswordHash
	}
	if u.ExternalID != "" {
		input["external_id"] = u.ExternalID
	}
	if u.AvatarURL != "" {
		input["avatar_url"] = u.AvatarURL
	}
	return s.client.Create(ctx, colUser, input)
}

func (s *DefraStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	resp, err := defra.NewQuery(colUser).
		Filter("email", email).
		Fields("_docID", "email", "name", "password_hash", "external_id", "avatar_url", "created_at", "updated_at").
		Limit(1).
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colUser)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	u := decodeUser(docs[0])
	return &u, nil
}

// --- books ---

var bookFields = []string{
	"_docID", "user_id", "title", "author", "file_name", "page_count",
	"original_word_count", "variant", "status", "current_step", "progress",
	"error_message", "processing_started_at", "processing_completed_at",
	"total_chunks", "total_chapters", "density_score",
	"recommended_compression", "extraction_method", "created_at", "updated_at",
}

func (s *DefraStore) CreateBook(ctx context.Context, b *Book) (string, error) {
	input := map[string]any{
		"user_id":    b.UserID,
		"title":      b.Title,
		"file_name":  b.FileName,
		"variant":    string(b.Variant),
		"status":     string(b.Status),
		"progress":   b.Progress,
		"created_at": s.timestamp(),
		"updated_at": s.timestamp(),
	}
	if b.Author != "" {
		input["author"] = b.Author
	}
	if b.PageCount > 0 {
		input["page_count"] = b.PageCount
	}
	if b.OriginalWordCount > 0 {
		input["original_word_count"] = b.OriginalWordCount
	}
	if b.TotalChunks > 0 {
		input["total_chunks"] = b.TotalChunks
	}
	if b.TotalChapters > 0 {
		input["total_chapters"] = b.TotalChapters
	}
	if b.DensityScore > 0 {
		input["density_score"] = b.DensityScore
	}
	if b.RecommendedCompression > 0 {
		input["recommended_compression"] = b.RecommendedCompression
	}
	if b.ExtractionMethod != "" {
		input["extraction_method"] = b.ExtractionMethod
	}
	return s.client.Create(ctx, colBook, input)
}

func (s *DefraStore) GetBook(ctx context.Context, id string) (*Book, error) {
	if err := defra.ValidateID(id); err != nil {
		return nil, ErrNotFound
	}
	resp, err := defra.NewQuery(colBook).
		Filter("_docID", id).
		Fields(bookFields...).
		Limit(1).
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colBook)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	b := decodeBook(docs[0])
	return &b, nil
}

func (s *DefraStore) ListBooks(ctx context.Context, userID string) ([]Book, error) {
	q := defra.NewQuery(colBook).Fields(bookFields...).OrderBy("created_at", "DESC")
	if userID != "" {
		q.Filter("user_id", userID)
	}
	resp, err := q.Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colBook)
	if err != nil {
		return nil, err
	}
	books := make([]Book, 0, len(docs))
	for _, d := range docs {
		books = append(books, decodeBook(d))
	}
	return books, nil
}

func (s *DefraStore) UpdateBook(ctx context.Context, id string, upd BookUpdate) error {
	input := map[string]any{"updated_at": s.timestamp()}

	setStr := func(key string, v *string) {
		if v != nil {
			input[key] = *v
		}
	}
	setInt := func(key string, v *int) {
		if v != nil {
			input[key] = *v
		}
	}

	setStr("title", upd.Title)
	setStr("author", upd.Author)
	setInt("page_count", upd.PageCount)
	setInt("original_word_count", upd.OriginalWordCount)
	if upd.Status != nil {
		input["status"] = string(*upd.Status)
	}
	setStr("current_step", upd.CurrentStep)
	setInt("progress", upd.Progress)
	setStr("error_message", upd.ErrorMessage)
	if upd.ProcessingStartedAt != nil {
		input["processing_started_at"] = upd.ProcessingStartedAt.UTC().Format(time.RFC3339)
	}
	if upd.ProcessingCompletedAt != nil {
		input["processing_completed_at"] = upd.ProcessingCompletedAt.UTC().Format(time.RFC3339)
	}
	if upd.ClearProcessingTimes {
		input["processing_completed_at"] = nil
		input["error_message"] = ""
	}
	setInt("total_chunks", upd.TotalChunks)
	setInt("total_chapters", upd.TotalChapters)
	setInt("density_score", upd.DensityScore)
	if upd.RecommendedCompression != nil {
		input["recommended_compression"] = *upd.RecommendedCompression
	}
	setStr("extraction_method", upd.ExtractionMethod)

	return s.client.Update(ctx, colBook, id, input)
}

func (s *DefraStore) DeleteBook(ctx context.Context, id string) error {
	if err := defra.ValidateID(id); err != nil {
		return ErrNotFound
	}

	// Children first so a partial failure never orphans records behind
	// a deleted book.
	filter := map[string]any{"book_id": map[string]any{"_eq": id}}
	for _, col := range []string{colChunk, colChapter, colClaim, colIdea, colFinalOutput} {
		n, err := s.client.DeleteWhere(ctx, col, filter)
		if err != nil {
			return fmt.Errorf("deleting %s records: %w", col, err)
		}
		if n > 0 {
			s.logger.Debug("cascade delete", "collection", col, "count", n, "book_id", id)
		}
	}
	return s.client.Delete(ctx, colBook, id)
}

// --- chunks ---

func (s *DefraStore) CreateChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	inputs := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		inputs = append(inputs, map[string]any{
			"book_id":     c.BookID,
			"chunk_index": c.Index,
			"text":        c.Text,
			"token_count": c.TokenCount,
			"created_at":  s.timestamp(),
		})
	}
	_, err := s.client.CreateMany(ctx, colChunk, inputs)
	return err
}

func (s *DefraStore) ListChunks(ctx context.Context, bookID string) ([]Chunk, error) {
	resp, err := defra.NewQuery(colChunk).
		Filter("book_id", bookID).
		Fields("_docID", "book_id", "chunk_index", "text", "token_count").
		OrderBy("chunk_index", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colChunk)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, 0, len(docs))
	for _, d := range docs {
		chunks = append(chunks, Chunk{
			ID:         getString(d, "_docID"),
			BookID:     getString(d, "book_id"),
			Index:      getInt(d, "chunk_index"),
			Text:       getString(d, "text"),
			TokenCount: getInt(d, "token_count"),
		})
	}
	return chunks, nil
}

// --- chapters ---

func (s *DefraStore) CreateChapters(ctx context.Context, chapters []Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	inputs := make([]map[string]any, 0, len(chapters))
	for _, ch := range chapters {
		inputs = append(inputs, map[string]any{
			"book_id":              ch.BookID,
			"chapter_index":        ch.Index,
			"title":                ch.Title,
			"level":                ch.Level,
			"original_content":     ch.OriginalContent,
			"original_token_count": ch.OriginalTokenCount,
			"created_at":           s.timestamp(),
			"updated_at":           s.timestamp(),
		})
	}
	_, err := s.client.CreateMany(ctx, colChapter, inputs)
	return err
}

func (s *DefraStore) ListChapters(ctx context.Context, bookID string) ([]Chapter, error) {
	resp, err := defra.NewQuery(colChapter).
		Filter("book_id", bookID).
		Fields("_docID", "book_id", "chapter_index", "title", "level",
			"original_content", "original_token_count", "compressed_content",
			"key_insights", "compressed_token_count").
		OrderBy("chapter_index", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colChapter)
	if err != nil {
		return nil, err
	}
	chapters := make([]Chapter, 0, len(docs))
	for _, d := range docs {
		chapters = append(chapters, Chapter{
			ID:                   getString(d, "_docID"),
			BookID:               getString(d, "book_id"),
			Index:                getInt(d, "chapter_index"),
			Title:                getString(d, "title"),
			Level:                getInt(d, "level"),
			OriginalContent:      getString(d, "original_content"),
			OriginalTokenCount:   getInt(d, "original_token_count"),
			CompressedContent:    getString(d, "compressed_content"),
			KeyInsights:          getStringSlice(d, "key_insights"),
			CompressedTokenCount: getInt(d, "compressed_token_count"),
		})
	}
	return chapters, nil
}

func (s *DefraStore) UpdateChapter(ctx context.Context, id string, upd ChapterUpdate) error {
	input := map[string]any{"updated_at": s.timestamp()}
	if upd.CompressedContent != nil {
		input["compressed_content"] = *upd.CompressedContent
	}
	if upd.KeyInsights != nil {
		input["key_insights"] = *upd.KeyInsights
	}
	if upd.CompressedTokenCount != nil {
		input["compressed_token_count"] = *upd.CompressedTokenCount
	}
	return s.client.Update(ctx, colChapter, id, input)
}

// --- claims ---

func (s *DefraStore) CreateClaims(ctx context.Context, claims []Claim) error {
	if len(claims) == 0 {
		return nil
	}
	inputs := make([]map[string]any, 0, len(claims))
	for _, c := range claims {
		input := map[string]any{
			"book_id":    c.BookID,
			"text":       c.Text,
			"claim_type": c.Type,
			"created_at": s.timestamp(),
			"updated_at": s.timestamp(),
		}
		if c.ChunkID != "" {
			input["chunk_id"] = c.ChunkID
		}
		inputs = append(inputs, input)
	}
	_, err := s.client.CreateMany(ctx, colClaim, inputs)
	return err
}

func (s *DefraStore) ListClaims(ctx context.Context, bookID string) ([]Claim, error) {
	resp, err := defra.NewQuery(colClaim).
		Filter("book_id", bookID).
		Fields("_docID", "book_id", "chunk_id", "text", "claim_type", "label", "score", "reason").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colClaim)
	if err != nil {
		return nil, err
	}
	claims := make([]Claim, 0, len(docs))
	for _, d := range docs {
		claims = append(claims, Claim{
			ID:      getString(d, "_docID"),
			BookID:  getString(d, "book_id"),
			ChunkID: getString(d, "chunk_id"),
			Text:    getString(d, "text"),
			Type:    getString(d, "claim_type"),
			Label:   getString(d, "label"),
			Score:   getFloat(d, "score"),
			Reason:  getString(d, "reason"),
		})
	}
	return claims, nil
}

func (s *DefraStore) UpdateClaim(ctx context.Context, id string, upd ClaimUpdate) error {
	input := map[string]any{"updated_at": s.timestamp()}
	if upd.Label != nil {
		input["label"] = *upd.Label
	}
	if upd.Score != nil {
		input["score"] = *upd.Score
	}
	if upd.Reason != nil {
		input["reason"] = *upd.Reason
	}
	return s.client.Update(ctx, colClaim, id, input)
}

// --- ideas ---

func (s *DefraStore) CreateIdeas(ctx context.Context, ideas []Idea) error {
	if len(ideas) == 0 {
		return nil
	}
	inputs := make([]map[string]any, 0, len(ideas))
	for _, idea := range ideas {
		input := map[string]any{
			"book_id":       idea.BookID,
			"idea_index":    idea.Index,
			"title":         idea.Title,
			"merged_claims": idea.MergedClaims,
			"created_at":    s.timestamp(),
			"updated_at":    s.timestamp(),
		}
		if idea.Principle != "" {
			input["principle"] = idea.Principle
		}
		if idea.BehaviorDelta != "" {
			input["behavior_delta"] = idea.BehaviorDelta
		}
		if len(idea.Examples) > 0 {
			b, err := json.Marshal(idea.Examples)
			if err != nil {
				return fmt.Errorf("marshaling examples: %w", err)
			}
			input["examples_json"] = string(b)
		}
		inputs = append(inputs, input)
	}
	_, err := s.client.CreateMany(ctx, colIdea, inputs)
	return err
}

func (s *DefraStore) ListIdeas(ctx context.Context, bookID string) ([]Idea, error) {
	resp, err := defra.NewQuery(colIdea).
		Filter("book_id", bookID).
		Fields("_docID", "book_id", "idea_index", "title", "merged_claims",
			"principle", "behavior_delta", "examples_json").
		OrderBy("idea_index", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colIdea)
	if err != nil {
		return nil, err
	}
	ideas := make([]Idea, 0, len(docs))
	for _, d := range docs {
		idea := Idea{
			ID:            getString(d, "_docID"),
			BookID:        getString(d, "book_id"),
			Index:         getInt(d, "idea_index"),
			Title:         getString(d, "title"),
			MergedClaims:  getStringSlice(d, "merged_claims"),
			Principle:     getString(d, "principle"),
			BehaviorDelta: getString(d, "behavior_delta"),
		}
		if raw := getString(d, "examples_json"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &idea.Examples); err != nil {
				s.logger.Warn("bad examples_json, skipping", "idea_id", idea.ID, "error", err)
			}
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}

func (s *DefraStore) DeleteIdeas(ctx context.Context, bookID string) error {
	_, err := s.client.DeleteWhere(ctx, colIdea, map[string]any{
		"book_id": map[string]any{"_eq": bookID},
	})
	return err
}

// --- final output ---

func (s *DefraStore) UpsertFinalOutput(ctx context.Context, out *FinalOutput) error {
	fields := map[string]any{
		"markdown":   out.Markdown,
		"word_count": out.WordCount,
		"updated_at": s.timestamp(),
	}
	if out.IdeaCount > 0 {
		fields["idea_count"] = out.IdeaCount
	}
	if out.ChapterCount > 0 {
		fields["chapter_count"] = out.ChapterCount
	}
	if out.CompressionRatio > 0 {
		fields["compression_ratio"] = out.CompressionRatio
	}

	create := map[string]any{"book_id": out.BookID, "created_at": s.timestamp()}
	for k, v := range fields {
		create[k] = v
	}

	filter := map[string]any{"book_id": map[string]any{"_eq": out.BookID}}
	id, err := s.client.Upsert(ctx, colFinalOutput, filter, create, fields)
	if err != nil {
		return err
	}
	out.ID = id
	return nil
}

func (s *DefraStore) GetFinalOutput(ctx context.Context, bookID string) (*FinalOutput, error) {
	resp, err := defra.NewQuery(colFinalOutput).
		Filter("book_id", bookID).
		Fields("_docID", "book_id", "markdown", "word_count", "idea_count",
			"chapter_count", "compression_ratio").
		Limit(1).
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	docs, err := docsOf(resp, colFinalOutput)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	d := docs[0]
	return &FinalOutput{
		ID:               getString(d, "_docID"),
		BookID:           getString(d, "book_id"),
		Markdown:         getString(d, "markdown"),
		WordCount:        getInt(d, "word_count"),
		IdeaCount:        getInt(d, "idea_count"),
		ChapterCount:     getInt(d, "chapter_count"),
		CompressionRatio: getFloat(d, "compression_ratio"),
	}, nil
}

// --- decoding helpers ---

func docsOf(resp *defra.GQLResponse, collection string) ([]map[string]any, error) {
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("query error: %s", msg)
	}
	raw, ok := resp.Data[collection].([]any)
	if !ok {
		if resp.Data[collection] == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected response shape for %s", collection)
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			docs = append(docs, m)
		}
	}
	return docs, nil
}

func decodeUser(d map[string]any) User {
	return User{
		ID:           getString(d, "_docID"),
		Email:        getString(d, "email"),
		Name:         getString(d, "name"),
		PasswordHash: getString(d, "password_hash"),
		ExternalID:   getString(d, "external_id"),
		AvatarURL:    getString(d, "avatar_url"),
		CreatedAt:    getTime(d, "created_at"),
		UpdatedAt:    getTime(d, "updated_at"),
	}
}

func decodeBook(d map[string]any) Book {
	b := Book{
		ID:                     getString(d, "_docID"),
		UserID:                 getString(d, "user_id"),
		Title:                  getString(d, "title"),
		Author:                 getString(d, "author"),
		FileName:               getString(d, "file_name"),
		PageCount:              getInt(d, "page_count"),
		OriginalWordCount:      getInt(d, "original_word_count"),
		Variant:                Variant(getString(d, "variant")),
		Status:                 Status(getString(d, "status")),
		CurrentStep:            getString(d, "current_step"),
		Progress:               getInt(d, "progress"),
		ErrorMessage:           getString(d, "error_message"),
		TotalChunks:            getInt(d, "total_chunks"),
		TotalChapters:          getInt(d, "total_chapters"),
		DensityScore:           getInt(d, "density_score"),
		RecommendedCompression: getFloat(d, "recommended_compression"),
		ExtractionMethod:       getString(d, "extraction_method"),
		CreatedAt:              getTime(d, "created_at"),
		UpdatedAt:              getTime(d, "updated_at"),
	}
	if t := getTime(d, "processing_started_at"); !t.IsZero() {
		b.ProcessingStartedAt = &t
	}
	if t := getTime(d, "processing_completed_at"); !t.IsZero() {
		b.ProcessingCompletedAt = &t
	}
	return b
}

func getString(d map[string]any, key string) string {
	s, _ := d[key].(string)
	return s
}

func getInt(d map[string]any, key string) int {
	switch v := d[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func getFloat(d map[string]any, key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func getTime(d map[string]any, key string) time.Time {
	s, _ := d[key].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func getStringSlice(d map[string]any, key string) []string {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
