package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"season-planner-api/pkg/models"
)

const (
	seasonArchiveCollection = "season_archive"
	seasonProfileDims       = 52
)

// SeasonArchive stores finished seasons in Qdrant, keyed by workflow id,
// with the normalised weekly sales curve as the vector.
type SeasonArchive struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	logger      *slog.Logger
}

// DialSeasonArchive connects to Qdrant over gRPC. With an API key the
// connection uses TLS and sends the key on every call.
func DialSeasonArchive(ctx context.Context, qdrantURL, apiKey string, logger *slog.Logger) (*SeasonArchive, error) {
	var dialOpts []grpc.DialOption
	if apiKey != "" {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		auth := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(auth))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(qdrantURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create qdrant grpc client: %w", err)
	}
	a := NewSeasonArchive(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), logger)
	if err := a.EnsureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// NewSeasonArchive wraps existing Qdrant clients.
func NewSeasonArchive(points qdrant.PointsClient, collections qdrant.CollectionsClient, logger *slog.Logger) *SeasonArchive {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeasonArchive{
		points:      points,
		collections: collections,
		collection:  seasonArchiveCollection,
		logger:      logger,
	}
}

// EnsureCollection waits for Qdrant and creates the collection if missing.
func (a *SeasonArchive) EnsureCollection(ctx context.Context) error {
	const maxRetries = 5
	retryInterval := time.Second

	var res *qdrant.ListCollectionsResponse
	var err error
	for i := 0; i < maxRetries; i++ {
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		res, err = a.collections.List(callCtx, &qdrant.ListCollectionsRequest{})
		cancel()
		if err == nil {
			break
		}
		a.logger.Warn("Qdrant not ready, retrying", "attempt", i+1, "max", maxRetries, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	if err != nil {
		return fmt.Errorf("list qdrant collections: %w", err)
	}
	for _, c := range res.GetCollections() {
		if c.GetName() == a.collection {
			return nil
		}
	}

	a.logger.Info("Creating season archive collection", "collection", a.collection)
	_, err = a.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: a.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     seasonProfileDims,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}
	return nil
}

// ArchiveSeason upserts a finished season. Re-archiving the same workflow
// overwrites the previous point.
func (a *SeasonArchive) ArchiveSeason(ctx context.Context, report models.SeasonReport, actuals []int) error {
	vector, err := seasonProfile(actuals)
	if err != nil {
		return err
	}
	payload := map[string]*qdrant.Value{
		"workflow_id":      {Kind: &qdrant.Value_StringValue{StringValue: report.WorkflowID}},
		"category":         {Kind: &qdrant.Value_StringValue{StringValue: report.Category}},
		"season_length":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(report.SeasonLength)}},
		"actual_units":     {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(report.ActualUnits)}},
		"mape":             {Kind: &qdrant.Value_DoubleValue{DoubleValue: report.MAPE}},
		"sell_through":     {Kind: &qdrant.Value_DoubleValue{DoubleValue: report.SellThrough}},
		"markdown_applied": {Kind: &qdrant.Value_BoolValue{BoolValue: report.MarkdownApplied}},
		"archived_at":      {Kind: &qdrant.Value_StringValue{StringValue: report.GeneratedAt.Format(time.RFC3339)}},
	}
	wait := true
	_, err = a.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id: &qdrant.PointId{
					PointIdOptions: &qdrant.PointId_Uuid{Uuid: report.WorkflowID},
				},
				Vectors: &qdrant.Vectors{
					VectorsOptions: &qdrant.Vectors_Vector{
						Vector: &qdrant.Vector{Data: vector},
					},
				},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("archive season %s: %w", report.WorkflowID, err)
	}
	a.logger.Info("Season archived", "workflow_id", report.WorkflowID, "category", report.Category)
	return nil
}

// FindSimilarSeasons returns the k archived seasons whose sales shape is
// closest to curve.
func (a *SeasonArchive) FindSimilarSeasons(ctx context.Context, curve []int, k uint64) ([]models.SimilarSeason, error) {
	vector, err := seasonProfile(curve)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		k = 5
	}
	res, err := a.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: a.collection,
		Vector:         vector,
		Limit:          k,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search season archive: %w", err)
	}
	out := make([]models.SimilarSeason, 0, len(res.GetResult()))
	for _, hit := range res.GetResult() {
		p := hit.GetPayload()
		out = append(out, models.SimilarSeason{
			WorkflowID:  p["workflow_id"].GetStringValue(),
			Category:    p["category"].GetStringValue(),
			Score:       hit.GetScore(),
			ActualUnits: p["actual_units"].GetIntegerValue(),
			MAPE:        p["mape"].GetDoubleValue(),
			SellThrough: p["sell_through"].GetDoubleValue(),
		})
	}
	return out, nil
}

// seasonProfile normalises weekly sales by their total into a fixed-length
// vector, zero padded or truncated to 52 weeks.
func seasonProfile(actuals []int) ([]float32, error) {
	v := make([]float32, seasonProfileDims)
	var total float64
	for i, a := range actuals {
		if i >= seasonProfileDims {
			break
		}
		total += float64(a)
	}
	if total <= 0 {
		return nil, errors.New("season has no sales to profile")
	}
	for i, a := range actuals {
		if i >= seasonProfileDims {
			break
		}
		v[i] = float32(float64(a) / total)
	}
	return v, nil
}
