package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type putCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) GetCart(c *gin.Context) {
	view, err := s.cartSvc.View(c.Request.Context(), c.GetHeader(HeaderCartSession))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) PutCartItem(c *gin.Context) {
	offeringID, err := parseIDParam(c, "offering_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req putCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	view, err := s.cartSvc.Put(c.Request.Context(), c.GetHeader(HeaderCartSession), offeringID, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	offeringID, err := parseIDParam(c, "offering_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	view, err := s.cartSvc.Remove(c.Request.Context(), c.GetHeader(HeaderCartSession), offeringID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) ClearCart(c *gin.Context) {
	if err := s.cartSvc.Clear(c.Request.Context(), c.GetHeader(HeaderCartSession)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
