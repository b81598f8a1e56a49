package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	fulfillmentdomain "github.com/smallbiznis/launchpad/internal/fulfillment/domain"
	launchdomain "github.com/smallbiznis/launchpad/internal/launch/domain"
)

func (s *Server) StartLaunchRequest(c *gin.Context) {
	req, created, err := s.launchSvc.Start(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": req})
}

func (s *Server) GetCurrentLaunchRequest(c *gin.Context) {
	req, err := s.launchSvc.GetCurrent(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) GetLaunchRequest(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, err := s.launchSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) SaveLaunchStep(c *gin.Context) {
	id, step, err := launchStepParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := s.launchSvc.SaveStep(c.Request.Context(), id, step, payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) AdvanceLaunchStep(c *gin.Context) {
	id, step, err := launchStepParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, err := s.launchSvc.AdvanceStep(c.Request.Context(), id, step)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) SubmitLaunchRequest(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, err := s.launchSvc.SubmitForm(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) GetLaunchProgress(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	progress, err := s.fulfillmentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func (s *Server) SimulateLaunchPayment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, err := s.launchSvc.SimulatePayment(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

// -------- Staff workflow --------

func (s *Server) GetLaunchBoard(c *gin.Context) {
	columns, err := s.launchSvc.Board(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": columns})
}

type setAdminStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) SetLaunchAdminStatus(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var body setAdminStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status, ok := launchdomain.ParseAdminStatus(body.Status)
	if !ok {
		AbortWithError(c, launchdomain.ErrInvalidAdminStatus)
		return
	}
	req, err := s.launchSvc.SetAdminStatus(c.Request.Context(), id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) ReopenLaunchForm(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, err := s.launchSvc.ReopenForm(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) WaiveLaunchPayment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, err := s.launchSvc.WaivePayment(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) UpdateDeliverable(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	kind, ok := fulfillmentdomain.ParseKind(c.Param("deliverable"))
	if !ok {
		AbortWithError(c, fulfillmentdomain.ErrInvalidKind)
		return
	}
	var patch fulfillmentdomain.DeliverablePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	progress, err := s.fulfillmentSvc.UpdateDeliverable(c.Request.Context(), id, kind, patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func launchStepParams(c *gin.Context) (int64, int, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	step, err := strconv.Atoi(strings.TrimSpace(c.Param("step")))
	if err != nil {
		return 0, 0, launchdomain.ErrInvalidStep
	}
	return id, step, nil
}
