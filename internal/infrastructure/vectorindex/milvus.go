package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/sirupsen/logrus"
)

const (
	partition    = ""
	fieldID      = "id"
	fieldVector  = "vector"
	fieldKind    = "kind"
	fieldScope   = "scope"
	fieldExpires = "expires_at"
	fieldPayload = "payload"

	maxPayloadLength = 65535
)

var outputFields = []string{fieldID, fieldKind, fieldScope, fieldExpires, fieldPayload}

// MilvusIndex stores cache entries in Milvus collections, one per logical index
type MilvusIndex struct {
	client client.Client
}

// MilvusConfig holds the Milvus connection settings
type MilvusConfig struct {
	Address  string
	Username string
	Password string
}

// NewMilvusIndex connects to Milvus
func NewMilvusIndex(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to milvus at %s: %v", domain.ErrIndexUnavailable, cfg.Address, err)
	}
	return &MilvusIndex{client: mc}, nil
}

// Close releases the Milvus connection
func (m *MilvusIndex) Close() error {
	return m.client.Close()
}

func (m *MilvusIndex) EnsureIndex(ctx context.Context, name string, dimension int) error {
	exist, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}

	if !exist {
		schema := &entity.Schema{
			CollectionName: name,
			Fields: []*entity.Field{
				entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(128),
				entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dimension)),
				entity.NewField().WithName(fieldKind).WithDataType(entity.FieldTypeVarChar).WithMaxLength(32),
				entity.NewField().WithName(fieldScope).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128),
				entity.NewField().WithName(fieldExpires).WithDataType(entity.FieldTypeInt64),
				entity.NewField().WithName(fieldPayload).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxPayloadLength),
			},
		}
		if err := m.client.CreateCollection(ctx, schema, 2); err != nil {
			return fmt.Errorf("%w: create collection %s: %v", domain.ErrIndexUnavailable, name, err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if err != nil {
			return err
		}
		if err := m.client.CreateIndex(ctx, name, fieldVector, idx, false); err != nil {
			return fmt.Errorf("%w: create index on %s: %v", domain.ErrIndexUnavailable, name, err)
		}
		logrus.WithField("dimension", dimension).Infof("[MILVUS] created collection %s", name)
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("%w: load collection %s: %v", domain.ErrIndexUnavailable, name, err)
	}
	return nil
}

func (m *MilvusIndex) Upsert(ctx context.Context, index string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	dim := len(records[0].Vector)
	ids := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	kinds := make([]string, 0, len(records))
	scopes := make([]string, 0, len(records))
	expires := make([]int64, 0, len(records))
	payloads := make([]string, 0, len(records))

	for _, r := range records {
		if len(r.Payload) > maxPayloadLength {
			return fmt.Errorf("record %s payload is %d bytes, limit is %d", r.ID, len(r.Payload), maxPayloadLength)
		}
		ids = append(ids, r.ID)
		vectors = append(vectors, r.Vector)
		kinds = append(kinds, r.Kind)
		scopes = append(scopes, r.Scope)
		expires = append(expires, r.ExpiresAt.Unix())
		payloads = append(payloads, string(r.Payload))
	}

	_, err := m.client.Upsert(ctx, index, partition,
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
		entity.NewColumnVarChar(fieldKind, kinds),
		entity.NewColumnVarChar(fieldScope, scopes),
		entity.NewColumnInt64(fieldExpires, expires),
		entity.NewColumnVarChar(fieldPayload, payloads),
	)
	if err != nil {
		return fmt.Errorf("upsert %d records into %s: %w", len(records), index, err)
	}
	return nil
}

func (m *MilvusIndex) Query(ctx context.Context, index string, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	sp, err := entity.NewIndexHNSWSearchParam(max(topK, 64))
	if err != nil {
		return nil, err
	}

	results, err := m.client.Search(ctx, index, nil, filterExpr(filter), outputFields,
		[]entity.Vector{entity.FloatVector(vector)}, fieldVector, entity.COSINE, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}

	matches := make([]domain.VectorMatch, 0)
	for _, sr := range results {
		for i, score := range sr.Scores {
			match, err := readMatch(sr, i)
			if err != nil {
				return nil, err
			}
			match.Score = score
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (m *MilvusIndex) Delete(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	expr := fmt.Sprintf("%s in [%s]", fieldID, quoteList(ids))
	if err := m.client.Delete(ctx, index, partition, expr); err != nil {
		return fmt.Errorf("delete %d records from %s: %w", len(ids), index, err)
	}
	return nil
}

func readMatch(sr client.SearchResult, i int) (domain.VectorMatch, error) {
	id, err := sr.IDs.GetAsString(i)
	if err != nil {
		return domain.VectorMatch{}, err
	}
	match := domain.VectorMatch{ID: id}

	if col := sr.Fields.GetColumn(fieldKind); col != nil {
		match.Kind, _ = col.GetAsString(i)
	}
	if col := sr.Fields.GetColumn(fieldScope); col != nil {
		match.Scope, _ = col.GetAsString(i)
	}
	if col := sr.Fields.GetColumn(fieldExpires); col != nil {
		if ts, err := col.GetAsInt64(i); err == nil {
			match.ExpiresAt = time.Unix(ts, 0)
		}
	}
	if col := sr.Fields.GetColumn(fieldPayload); col != nil {
		payload, err := col.GetAsString(i)
		if err != nil {
			return domain.VectorMatch{}, err
		}
		match.Payload = []byte(payload)
	}
	return match, nil
}

// filterExpr renders a VectorFilter as a Milvus boolean expression
func filterExpr(f domain.VectorFilter) string {
	var clauses []string
	if f.Kind != "" {
		clauses = append(clauses, fmt.Sprintf(`%s == "%s"`, fieldKind, escape(f.Kind)))
	}
	if f.Scope != "" {
		clauses = append(clauses, fmt.Sprintf(`%s == "%s"`, fieldScope, escape(f.Scope)))
	}
	if !f.ExpiresAfter.IsZero() {
		clauses = append(clauses, fmt.Sprintf("%s > %d", fieldExpires, f.ExpiresAfter.Unix()))
	}
	if !f.ExpiresBefore.IsZero() {
		clauses = append(clauses, fmt.Sprintf("%s < %d", fieldExpires, f.ExpiresBefore.Unix()))
	}
	return strings.Join(clauses, " && ")
}

func quoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, `"`+escape(v)+`"`)
	}
	return strings.Join(quoted, ", ")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
