package sink

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/bytedance/sonic"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// IndexerFactory creates a new BulkIndexer.
type IndexerFactory func(cfg config.ElasticsearchSinkConfig) (esutil.BulkIndexer, error)

// ElasticsearchOption configures the ElasticsearchSink.
type ElasticsearchOption func(*ElasticsearchSink)

// WithIndexerFactory sets a custom factory for creating the BulkIndexer.
// This is primarily used for testing to inject a mock indexer.
func WithIndexerFactory(f IndexerFactory) ElasticsearchOption {
	return func(s *ElasticsearchSink) {
		s.factory = f
	}
}

// ElasticsearchSink indexes one document per report row.
type ElasticsearchSink struct {
	cfg     config.ElasticsearchSinkConfig
	factory IndexerFactory
	indexer esutil.BulkIndexer
	mu      sync.Mutex
	logger  logger.ILogger
}

// NewElasticsearchSink creates a new Elasticsearch sink.
func NewElasticsearchSink(cfg config.ElasticsearchSinkConfig, log logger.ILogger, opts ...ElasticsearchOption) *ElasticsearchSink {
	s := &ElasticsearchSink{
		cfg:     cfg,
		factory: newBulkIndexer,
		logger:  log.SubLogger("ElasticsearchSink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newBulkIndexer(cfg config.ElasticsearchSinkConfig) (esutil.BulkIndexer, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		Index:         cfg.Index,
		NumWorkers:    2,
		FlushBytes:    5e+6,
		FlushInterval: cfg.FlushInterval,
	})
}

// Name returns the sink identifier.
func (s *ElasticsearchSink) Name() string {
	return "elasticsearch"
}

// Start creates the client and bulk indexer.
func (s *ElasticsearchSink) Start(ctx context.Context) error {
	indexer, err := s.factory(s.cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.indexer = indexer
	s.mu.Unlock()

	s.logger.Infof("connected to Elasticsearch: addresses=%v index=%s", s.cfg.Addresses, s.cfg.Index)
	return nil
}

// Stop flushes and closes the bulk indexer.
func (s *ElasticsearchSink) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexer == nil {
		return nil
	}
	if err := s.indexer.Close(ctx); err != nil {
		return fmt.Errorf("closing bulk indexer: %w", err)
	}

	stats := s.indexer.Stats()
	s.logger.Infof("bulk indexer closed: added=%d flushed=%d failed=%d", stats.NumAdded, stats.NumFlushed, stats.NumFailed)
	if stats.NumFailed > 0 {
		return fmt.Errorf("elasticsearch: %d documents failed to index", stats.NumFailed)
	}
	return nil
}

// Write queues one document per row. Documents are flushed by the indexer in
// the background and at the latest on Stop.
func (s *ElasticsearchSink) Write(ctx context.Context, rep *model.Report) error {
	s.mu.Lock()
	indexer := s.indexer
	s.mu.Unlock()

	if indexer == nil {
		return fmt.Errorf("elasticsearch sink not started")
	}

	for _, doc := range newRowDocuments(rep) {
		data, err := sonic.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}

		err = indexer.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: documentID(doc.Report, doc.Source, doc.URL),
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					s.logger.Warningf("indexing failed: url=%s error=%v", doc.URL, err)
					return
				}
				s.logger.Warningf("indexing failed: url=%s type=%s reason=%s", doc.URL, res.Error.Type, res.Error.Reason)
			},
		})
		if err != nil {
			return fmt.Errorf("queueing document: %w", err)
		}
	}

	s.logger.Debugf("queued rows: report=%s count=%d", rep.Name(), len(rep.Rows))
	return nil
}

// documentID identifies a row across reruns, so an overwritten report
// replaces its documents.
func documentID(report, source, url string) string {
	h := sha256.New()
	for _, part := range []string{report, source, url} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
