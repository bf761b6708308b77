// Package activitysearch maintains a full-text index over activity records
// so the activity feed can be searched by origin, transaction hash or
// action.
package activitysearch

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/lang/en"
	"github.com/blevesearch/bleve/mapping"

	"github.com/tranvictor/walletd/approval"
	"github.com/tranvictor/walletd/repo"
)

// activityDoc is the indexed projection of an activity. The full record
// stays in the KV store; search hits are rehydrated from there.
type activityDoc struct {
	Origin         string `json:"origin"`
	Kind           string `json:"kind"`
	TxHash         string `json:"txHash"`
	AccountAddress string `json:"accountAddress"`
	Action         string `json:"action"`
}

type Index struct {
	index  bleve.Index
	kv     repo.KV
	logger *slog.Logger
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("origin", textFieldMapping)
	docMapping.AddFieldMappingsAt("kind", textFieldMapping)
	docMapping.AddFieldMappingsAt("txHash", textFieldMapping)
	docMapping.AddFieldMappingsAt("accountAddress", textFieldMapping)
	docMapping.AddFieldMappingsAt("action", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	indexMapping.DefaultAnalyzer = "en"
	return indexMapping
}

// Open loads the index at path, creating it on first run, and backfills any
// activities the index hasn't seen.
func Open(path string, kv repo.KV, logger *slog.Logger) (*Index, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening activity index at %s: %w", path, err)
	}
	result := &Index{index: index, kv: kv, logger: logger}
	if err = result.reindex(); err != nil {
		return nil, err
	}
	return result, nil
}

// NewMemOnly builds an in-memory index. Used by tests and by the daemon
// when it runs without a data dir.
func NewMemOnly(kv repo.KV, logger *slog.Logger) (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}
	result := &Index{index: index, kv: kv, logger: logger}
	if err = result.reindex(); err != nil {
		return nil, err
	}
	return result, nil
}

func docFor(a approval.Activity) activityDoc {
	action := ""
	if a.TxAction != nil {
		action = string(a.TxAction.Kind)
	}
	address := a.AccountAddress
	if address == "" && len(a.AccountAddresses) > 0 {
		address = a.AccountAddresses[0]
	}
	return activityDoc{
		Origin:         a.Source.Origin,
		Kind:           string(a.Kind),
		TxHash:         a.TxHash,
		AccountAddress: address,
		Action:         action,
	}
}

// Index adds or updates one activity in the search index.
func (ix *Index) Index(a approval.Activity) error {
	return ix.index.Index(a.ID, docFor(a))
}

// reindex walks the activity table and indexes everything in batches.
func (ix *Index) reindex() error {
	records, err := ix.kv.List(repo.Activities)
	if err != nil {
		return fmt.Errorf("listing activities: %w", err)
	}
	batch := ix.index.NewBatch()
	batchCount := 0
	for id, raw := range records {
		var a approval.Activity
		if err = json.Unmarshal(raw, &a); err != nil {
			ix.logger.Warn("skipping unreadable activity", "activity", id, "err", err)
			continue
		}
		if err = batch.Index(id, docFor(a)); err != nil {
			return err
		}
		batchCount++
		if batchCount >= 1000 {
			if err = ix.index.Batch(batch); err != nil {
				return err
			}
			batch = ix.index.NewBatch()
			batchCount = 0
		}
	}
	if batchCount > 0 {
		return ix.index.Batch(batch)
	}
	return nil
}

// Hit is one search result, rehydrated from the KV store.
type Hit struct {
	Score    int               `json:"score"`
	Activity approval.Activity `json:"activity"`
}

// Search matches input against the indexed fields with a phrase match and a
// fuzzy fallback, best score first.
func (ix *Index) Search(input string) ([]Hit, error) {
	matchQuery := bleve.NewMatchPhraseQuery(input)
	fuzzyQuery := bleve.NewFuzzyQuery(input)
	fuzzyQuery.Fuzziness = 1
	query := bleve.NewDisjunctionQuery(matchQuery, fuzzyQuery)
	request := bleve.NewSearchRequest(query)

	searchResults, err := ix.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("activity search failed: %w", err)
	}

	hits := []Hit{}
	for _, searchResult := range searchResults.Hits {
		raw, found, err := ix.kv.Get(repo.Activities, searchResult.ID)
		if err != nil || !found {
			ix.logger.Warn("indexed activity missing from store", "activity", searchResult.ID)
			continue
		}
		var a approval.Activity
		if err = json.Unmarshal(raw, &a); err != nil {
			ix.logger.Warn("skipping unreadable activity", "activity", searchResult.ID, "err", err)
			continue
		}
		hits = append(hits, Hit{
			Score:    int(searchResult.Score * 1000000),
			Activity: a,
		})
	}
	return hits, nil
}

func (ix *Index) Close() error {
	return ix.index.Close()
}
