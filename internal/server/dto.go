package server

import (
	"permitline/internal/domain"
	"permitline/internal/repo"
)

// Request payloads

type CreateProjectRequest struct {
	Name         string `json:"name"`
	CustomerName string `json:"customer_name,omitempty"`
	ProductType  string `json:"product_type,omitempty"`
	CommunityURL string `json:"community_url,omitempty"`
}

type UpdateProjectRequest struct {
	Name          *string `json:"name,omitempty"`
	CustomerName  *string `json:"customer_name,omitempty"`
	ProductType   *string `json:"product_type,omitempty"`
	Status        *string `json:"status,omitempty" enum:"setup,uploading,analyzing,configured,deployed,error"`
	CommunityURL  *string `json:"community_url,omitempty"`
	CommunityName *string `json:"community_name,omitempty"`
}

func (r UpdateProjectRequest) toUpdate() repo.ProjectUpdate {
	return repo.ProjectUpdate{
		Name:          r.Name,
		CustomerName:  r.CustomerName,
		ProductType:   r.ProductType,
		Status:        r.Status,
		CommunityURL:  r.CommunityURL,
		CommunityName: r.CommunityName,
	}
}

type ResearchRequest struct {
	CommunityURL  string `json:"community_url,omitempty"`
	CommunityName string `json:"community_name,omitempty"`
}

// Responses

type UploadResponse struct {
	Files []domain.UploadedFile `json:"files"`
}

type AnalysisStatusResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage,omitempty"`
}

type DeletedResponse struct {
	Deleted bool `json:"deleted"`
}
