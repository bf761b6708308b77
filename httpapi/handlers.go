package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tranvictor/walletd/activitysearch"
	"github.com/tranvictor/walletd/approval"
	"github.com/tranvictor/walletd/repo"
	"github.com/tranvictor/walletd/tokens"
	"github.com/tranvictor/walletd/vault"
)

type Handler struct {
	store    *approval.Store
	resolver *approval.Resolver
	vault    vault.Vault
	kv       repo.KV
	engine   *tokens.Engine
	board    *tokens.StatusBoard
	search   *activitysearch.Index

	mu      sync.Mutex
	results map[string]resolutionResult
}

func NewHandler(
	store *approval.Store,
	resolver *approval.Resolver,
	v vault.Vault,
	kv repo.KV,
	engine *tokens.Engine,
	board *tokens.StatusBoard,
	search *activitysearch.Index,
) *Handler {
	return &Handler{
		store:    store,
		resolver: resolver,
		vault:    v,
		kv:       kv,
		engine:   engine,
		board:    board,
		search:   search,
		results:  map[string]resolutionResult{},
	}
}

// -------- DTOs for the local daemon API --------

type approvalView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Origin    string `json:"origin"`
	URL       string `json:"url,omitempty"`
	CreatedAt int64  `json:"createdAt"`

	ReturnSelectedAccount bool  `json:"returnSelectedAccount,omitempty"`
	PreferredChainID      int64 `json:"preferredChainId,omitempty"`

	ChainID        int64              `json:"chainId,omitempty"`
	AccountAddress string             `json:"accountAddress,omitempty"`
	TxParams       *approval.TxParams `json:"txParams,omitempty"`

	Standard string        `json:"standard,omitempty"`
	Message  hexutil.Bytes `json:"message,omitempty"`
}

type createApprovalReq struct {
	Kind   string `json:"kind" binding:"required"`
	Origin string `json:"origin" binding:"required"`
	URL    string `json:"url"`

	ReturnSelectedAccount bool  `json:"returnSelectedAccount"`
	PreferredChainID      int64 `json:"preferredChainId"`

	ChainID        int64             `json:"chainId"`
	AccountAddress string            `json:"accountAddress"`
	TxParams       approval.TxParams `json:"txParams"`
	RawTx          hexutil.Bytes     `json:"rawTx"`

	Standard string        `json:"standard"`
	Message  hexutil.Bytes `json:"message"`
}

type refreshReq struct {
	ChainID        int64  `json:"chainId" binding:"required"`
	AccountAddress string `json:"accountAddress" binding:"required"`
	TokenSlug      string `json:"tokenSlug" binding:"required"`
}

type resolutionResult struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error,omitempty"`
}

// httpReply keeps the page-facing reply so API clients can poll it after
// resolving.
type httpReply struct {
	handler *Handler
	id      string
}

func (r *httpReply) Reply(result interface{}, err error) {
	record := resolutionResult{Result: result}
	if err != nil {
		record.Error = err.Error()
	}
	r.handler.mu.Lock()
	defer r.handler.mu.Unlock()
	r.handler.results[r.id] = record
}

func viewOf(a approval.Approval) approvalView {
	base := a.Base()
	view := approvalView{
		ID:        base.ID,
		Kind:      string(a.Kind()),
		Origin:    base.Source.Origin,
		URL:       base.Source.URL,
		CreatedAt: base.CreatedAt.UnixMilli(),
	}
	switch pending := a.(type) {
	case *approval.Connection:
		view.ReturnSelectedAccount = pending.ReturnSelectedAccount
		view.PreferredChainID = pending.PreferredChainID
	case *approval.Transaction:
		view.ChainID = pending.ChainID
		view.AccountAddress = pending.AccountAddress
		view.TxParams = &pending.TxParams
	case *approval.Signing:
		view.AccountAddress = pending.AccountAddress
		view.Standard = string(pending.Standard)
		view.Message = pending.Message
	}
	return view
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/approvals
func (h *Handler) ListApprovals(c *gin.Context) {
	pending := h.store.List()
	views := make([]approvalView, 0, len(pending))
	for _, a := range pending {
		views = append(views, viewOf(a))
	}
	c.JSON(http.StatusOK, views)
}

// POST /api/approvals
func (h *Handler) CreateApproval(c *gin.Context) {
	var req createApprovalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	base := approval.Base{
		ID:        id,
		Source:    approval.Source{Origin: req.Origin, URL: req.URL},
		Reply:     &httpReply{handler: h, id: id},
		CreatedAt: time.Now(),
	}

	var pending approval.Approval
	switch approval.Kind(req.Kind) {
	case approval.KindConnection:
		pending = &approval.Connection{
			B:                     base,
			ReturnSelectedAccount: req.ReturnSelectedAccount,
			PreferredChainID:      req.PreferredChainID,
		}
	case approval.KindTransaction:
		pending = &approval.Transaction{
			B:              base,
			ChainID:        req.ChainID,
			AccountAddress: req.AccountAddress,
			TxParams:       req.TxParams,
			RawTx:          req.RawTx,
		}
	case approval.KindSigning:
		pending = &approval.Signing{
			B:              base,
			Standard:       vault.SigningStandard(req.Standard),
			AccountAddress: req.AccountAddress,
			Message:        req.Message,
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown approval kind " + req.Kind})
		return
	}

	if err := h.store.Add(pending); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// POST /api/approvals/:id/resolve
func (h *Handler) ResolveApproval(c *gin.Context) {
	var decision approval.Decision
	if err := c.ShouldBindJSON(&decision); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.resolver.Resolve(c.Request.Context(), id, decision, h.vault); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "resolved": true})
}

// GET /api/approvals/:id/result
func (h *Handler) ApprovalResult(c *gin.Context) {
	h.mu.Lock()
	record, found := h.results[c.Param("id")]
	h.mu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no resolution recorded"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GET /api/sync/status
func (h *Handler) SyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"busyChains": h.board.Snapshot()})
}

// POST /api/sync/refresh
func (h *Handler) RequestRefresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.engine.RequestRefresh(req.ChainID, req.AccountAddress, req.TokenSlug)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// GET /api/activities?q=
func (h *Handler) Activities(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		h.listActivities(c)
		return
	}
	hits, err := h.search.Search(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (h *Handler) listActivities(c *gin.Context) {
	records, err := h.kv.List(repo.Activities)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	activities := make([]approval.Activity, 0, len(records))
	for _, raw := range records {
		var a approval.Activity
		if err = json.Unmarshal(raw, &a); err != nil {
			continue
		}
		activities = append(activities, a)
	}
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].TimeAt > activities[j].TimeAt
	})
	c.JSON(http.StatusOK, activities)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, approval.ErrApprovalNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrNoAccounts),
		errors.Is(err, approval.ErrNoTransaction),
		errors.Is(err, approval.ErrMalformedTransaction),
		errors.Is(err, approval.ErrTxOriginMismatch),
		errors.Is(err, approval.ErrAccountNotFound),
		errors.Is(err, approval.ErrUnsupportedKind):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrTxSendBlocked):
		return http.StatusForbidden
	}
	var submission *approval.SubmissionError
	if errors.As(err, &submission) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
