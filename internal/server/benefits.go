package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	benefitdomain "github.com/smallbiznis/launchpad/internal/benefit/domain"
)

func (s *Server) ListBenefits(c *gin.Context) {
	items, err := s.benefitSvc.ListBenefits(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateBenefit(c *gin.Context) {
	var req benefitdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	benefit, err := s.benefitSvc.CreateBenefit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": benefit})
}

// IssueBenefitCode rejects a second claim with 409; clients read an existing
// code through GetIssuedBenefitCode.
func (s *Server) IssueBenefitCode(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	code, err := s.benefitSvc.Issue(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": code})
}

func (s *Server) GetIssuedBenefitCode(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	code, err := s.benefitSvc.GetIssued(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": code})
}

func (s *Server) RedeemBenefitCode(c *gin.Context) {
	code, err := s.benefitSvc.Redeem(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": code})
}
