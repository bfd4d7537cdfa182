// Chain Handlers - guarded ops surface
// Read access to the chain registry and runtime policy patches.
package handlers

import (
	"errors"
	"net/http"

	"github.com/necko-moe/necko3-core/internal/dto"
	"github.com/necko-moe/necko3-core/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ChainHandler handles chain registry operations.
type ChainHandler struct {
	chainRepo repository.ChainRepository
}

// NewChainHandler creates a new ChainHandler instance
func NewChainHandler(chainRepo repository.ChainRepository) *ChainHandler {
	return &ChainHandler{
		chainRepo: chainRepo,
	}
}

// ListChainsHandler lists every registered chain with its watermark
// GET /ops/chains
func (h *ChainHandler) ListChainsHandler(c *gin.Context) {
	chains, err := h.chainRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chains", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chains": chains,
		"total":  len(chains),
	})
}

// UpdateChainPolicyHandler patches block_lag and/or enabled for one chain.
// Watermark and connection fields are not reachable from here.
// PATCH /ops/chains/:name
func (h *ChainHandler) UpdateChainPolicyHandler(c *gin.Context) {
	name := c.Param("name")

	var req dto.UpdateChainPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.BlockLag == nil && req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update: provide block_lag and/or enabled"})
		return
	}

	chain, err := h.chainRepo.UpdatePolicy(c.Request.Context(), name, req.BlockLag, req.Enabled)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chain not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update chain policy", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chain": chain,
	})
}
