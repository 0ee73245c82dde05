package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"inbox_server/core/port/out"
)

// =============================================================================
// MongoDB Mail Body Adapter
// =============================================================================

const (
	collectionMailBodies = "mail_bodies"

	// Compression threshold - only compress if content is larger than this
	compressionThreshold = 1024 // 1KB
)

// MailBodyAdapter implements out.EmailBodyRepository using MongoDB.
type MailBodyAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewMailBodyAdapter creates a new MongoDB mail body adapter.
func NewMailBodyAdapter(db *mongo.Database) *MailBodyAdapter {
	collection := db.Collection(collectionMailBodies)
	return &MailBodyAdapter{
		db:         db,
		collection: collection,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *MailBodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

// mailBodyDocument represents the MongoDB document structure.
type mailBodyDocument struct {
	EmailID    int64  `bson:"email_id"`
	AccountID  int64  `bson:"account_id"`
	ExternalID string `bson:"external_id"`

	// Content (potentially compressed)
	HTML         []byte `bson:"html"`
	Text         []byte `bson:"text"`
	IsCompressed bool   `bson:"is_compressed"`

	// Size info
	OriginalSize   int64 `bson:"original_size"`
	CompressedSize int64 `bson:"compressed_size"`

	// Cache metadata
	CachedAt  time.Time `bson:"cached_at"`
	ExpiresAt time.Time `bson:"expires_at"`
	TTLDays   int       `bson:"ttl_days"`
}

// =============================================================================
// Single Operations
// =============================================================================

// SaveBody saves a mail body to MongoDB.
func (a *MailBodyAdapter) SaveBody(ctx context.Context, body *out.MailBodyEntity) error {
	doc, err := a.toDocument(body)
	if err != nil {
		return fmt.Errorf("failed to convert body to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"email_id": body.EmailID}

	_, err = a.collection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save mail body: %w", err)
	}

	return nil
}

// GetBody retrieves a mail body from MongoDB. A missing body is not an
// error; it returns nil.
func (a *MailBodyAdapter) GetBody(ctx context.Context, emailID int64) (*out.MailBodyEntity, error) {
	var doc mailBodyDocument
	filter := bson.M{"email_id": emailID}

	err := a.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mail body: %w", err)
	}

	return a.toEntity(&doc)
}

// =============================================================================
// Bulk Operations
// =============================================================================

// BulkSaveBody saves multiple mail bodies to MongoDB.
func (a *MailBodyAdapter) BulkSaveBody(ctx context.Context, bodies []*out.MailBodyEntity) error {
	if len(bodies) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(bodies))
	for _, body := range bodies {
		doc, err := a.toDocument(body)
		if err != nil {
			return fmt.Errorf("failed to convert body %d: %w", body.EmailID, err)
		}

		filter := bson.M{"email_id": body.EmailID}
		model := mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(doc).
			SetUpsert(true)
		models = append(models, model)
	}

	opts := options.BulkWrite().SetOrdered(false)
	_, err := a.collection.BulkWrite(ctx, models, opts)
	if err != nil {
		return fmt.Errorf("failed to bulk save mail bodies: %w", err)
	}

	return nil
}

// =============================================================================
// Cleanup Operations
// =============================================================================

// DeleteByAccountID deletes all mail bodies for an account.
func (a *MailBodyAdapter) DeleteByAccountID(ctx context.Context, accountID int64) (int64, error) {
	filter := bson.M{"account_id": accountID}

	result, err := a.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bodies by account: %w", err)
	}

	return result.DeletedCount, nil
}

// DeleteExpired deletes all expired mail bodies. The TTL index handles this
// in the background; this is for explicit cleanup runs.
func (a *MailBodyAdapter) DeleteExpired(ctx context.Context) (int64, error) {
	filter := bson.M{"expires_at": bson.M{"$lt": time.Now()}}

	result, err := a.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired bodies: %w", err)
	}

	return result.DeletedCount, nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func (a *MailBodyAdapter) toDocument(entity *out.MailBodyEntity) (*mailBodyDocument, error) {
	htmlBytes := []byte(entity.HTML)
	textBytes := []byte(entity.Text)
	originalSize := int64(len(htmlBytes) + len(textBytes))

	isCompressed := false
	compressedSize := originalSize

	// Compress if content is large enough
	if originalSize > compressionThreshold {
		compressedHTML, err := compress(htmlBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress HTML: %w", err)
		}
		compressedText, err := compress(textBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress text: %w", err)
		}

		htmlBytes = compressedHTML
		textBytes = compressedText
		isCompressed = true
		compressedSize = int64(len(htmlBytes) + len(textBytes))
	}

	return &mailBodyDocument{
		EmailID:        entity.EmailID,
		AccountID:      entity.AccountID,
		ExternalID:     entity.ExternalID,
		HTML:           htmlBytes,
		Text:           textBytes,
		IsCompressed:   isCompressed,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		CachedAt:       entity.CachedAt,
		ExpiresAt:      entity.ExpiresAt,
		TTLDays:        entity.TTLDays,
	}, nil
}

func (a *MailBodyAdapter) toEntity(doc *mailBodyDocument) (*out.MailBodyEntity, error) {
	htmlBytes := doc.HTML
	textBytes := doc.Text

	// Decompress if needed
	if doc.IsCompressed {
		var err error
		htmlBytes, err = decompress(doc.HTML)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress HTML: %w", err)
		}
		textBytes, err = decompress(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
	}

	return &out.MailBodyEntity{
		EmailID:        doc.EmailID,
		AccountID:      doc.AccountID,
		ExternalID:     doc.ExternalID,
		HTML:           string(htmlBytes),
		Text:           string(textBytes),
		OriginalSize:   doc.OriginalSize,
		CompressedSize: doc.CompressedSize,
		IsCompressed:   doc.IsCompressed,
		CachedAt:       doc.CachedAt,
		ExpiresAt:      doc.ExpiresAt,
		TTLDays:        doc.TTLDays,
	}, nil
}

// =============================================================================
// Compression Helpers
// =============================================================================

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

var _ out.EmailBodyRepository = (*MailBodyAdapter)(nil)
