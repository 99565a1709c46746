package capability

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/capa"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/graph"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/vector"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/llm"
)

const fileScheme = "file://"

// Source describes where each agent's data came from, for startup logging.
type Source struct {
	CAPA   string
	Graph  string
	Vector string
}

// FromConfig builds the registry of all three agents. Graph and vector data
// come from a file:// URI, else the fixture in the data directory, else the
// built-in seed. completer may be nil.
func FromConfig(cfg *config.Config, completer llm.Completer, logger *zap.Logger) (*Registry, Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var src Source

	src.CAPA = cfg.Data.CAPAPath()
	capaAgent := capa.NewAgent(src.CAPA,
		capa.WithWindowDays(cfg.CAPA.WindowDays),
		capa.WithLogger(logger.Named("capa")))

	store, graphSrc, err := graphStore(cfg)
	if err != nil {
		return nil, src, err
	}
	src.Graph = graphSrc
	graphAgent := graph.NewAgent(store,
		graph.WithDefaultBrand(cfg.Graph.DefaultBrand),
		graph.WithLogger(logger.Named("graph")))

	index, vectorSrc, err := vectorIndex(cfg)
	if err != nil {
		return nil, src, err
	}
	src.Vector = vectorSrc
	vectorOpts := []vector.Option{
		vector.WithTopK(cfg.Vector.TopK),
		vector.WithSummaryScore(cfg.Vector.SummaryScore),
		vector.WithDefaultBrand(cfg.Graph.DefaultBrand),
		vector.WithLogger(logger.Named("vector")),
	}
	if completer != nil && cfg.LLM.Summarize {
		vectorOpts = append(vectorOpts, vector.WithCompleter(completer))
	}
	vectorAgent := vector.NewAgent(index, vectorOpts...)

	return NewRegistry(capaAgent, graphAgent, vectorAgent), src, nil
}

func graphStore(cfg *config.Config) (graph.Store, string, error) {
	path, explicit := fixturePath(cfg.Graph.URI, cfg.Data.GraphFixturePath())
	if path == "" {
		return graph.NewMemoryStore(graph.SeedDataset()), "seed", nil
	}
	store, err := graph.LoadFixture(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return graph.NewMemoryStore(graph.SeedDataset()), "seed", nil
		}
		return nil, "", fmt.Errorf("graph store: %w", err)
	}
	return store, path, nil
}

func vectorIndex(cfg *config.Config) (vector.Index, string, error) {
	path, explicit := fixturePath(cfg.Vector.Endpoint, cfg.Data.VectorFixturePath())
	if path == "" {
		return vector.NewMemoryIndex(vector.SeedDocuments(), cfg.Vector.MinScore), "seed", nil
	}
	index, err := vector.LoadFixture(path, cfg.Vector.MinScore)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return vector.NewMemoryIndex(vector.SeedDocuments(), cfg.Vector.MinScore), "seed", nil
		}
		return nil, "", fmt.Errorf("vector index: %w", err)
	}
	return index, path, nil
}

// fixturePath returns the fixture to load and whether it was named
// explicitly by a file:// URI.
func fixturePath(uri, fallback string) (string, bool) {
	if strings.HasPrefix(uri, fileScheme) {
		return strings.TrimPrefix(uri, fileScheme), true
	}
	if fallback == "" {
		return "", false
	}
	if _, err := os.Stat(fallback); err != nil {
		return "", false
	}
	return fallback, false
}
