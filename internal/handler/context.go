package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextUserID         = "userID"
	ContextOrganizationID = "organizationID"
)

// OrganizationID returns the authenticated tenant set by the auth middleware.
func OrganizationID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextOrganizationID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// UserID returns the authenticated staff member set by the auth middleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
