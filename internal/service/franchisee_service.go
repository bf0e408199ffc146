package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
)

const (
	defaultFranchiseeLimit = 200
	maxFranchiseeLimit     = 500
)

var ErrNoFieldsToUpdate = errors.New("没有需要更新的字段")

type UpsertFranchiseeRequest struct {
	Code         string `json:"code" validate:"required,min=3,max=32"`
	Name         string `json:"name" validate:"required,max=128"`
	ContactPhone string `json:"contact_phone" validate:"max=32"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email,max=128"`
	Active       *bool  `json:"active"`
}

// UpdateFranchiseeRequest 只更新非 nil 的字段
type UpdateFranchiseeRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=128"`
	ContactPhone *string `json:"contact_phone" validate:"omitempty,max=32"`
	ContactEmail *string `json:"contact_email" validate:"omitempty,email,max=128"`
	Active       *bool   `json:"active"`
}

type FranchiseeService struct {
	repo *repository.FranchiseeRepository
}

func NewFranchiseeService(repo *repository.FranchiseeRepository) *FranchiseeService {
	return &FranchiseeService{repo: repo}
}

// Upsert 新建或覆盖，active 不传时默认启用
func (s *FranchiseeService) Upsert(ctx context.Context, req *UpsertFranchiseeRequest) (*model.Franchisee, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	req.ContactPhone = strings.TrimSpace(req.ContactPhone)
	req.ContactEmail = strings.TrimSpace(req.ContactEmail)
	if err := validateStruct(req).OrNil(); err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	f := &model.Franchisee{
		Code:         req.Code,
		Name:         req.Name,
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
		Active:       active,
	}
	if err := s.repo.Upsert(ctx, f); err != nil {
		return nil, err
	}

	log.Printf("[Franchisee] 加盟商已保存: code=%s, active=%v", f.Code, f.Active)
	return s.repo.GetByCode(ctx, f.Code)
}

// List active 为 "true"/"false" 时过滤，其它值忽略
func (s *FranchiseeService) List(ctx context.Context, active, q string, limit int) ([]*model.Franchisee, error) {
	f := repository.FranchiseeFilter{Query: q, Limit: clampLimit(limit, defaultFranchiseeLimit, maxFranchiseeLimit)}
	switch strings.ToLower(strings.TrimSpace(active)) {
	case "true", "1":
		v := true
		f.Active = &v
	case "false", "0":
		v := false
		f.Active = &v
	}
	return s.repo.List(ctx, f)
}

// Update 部分更新
func (s *FranchiseeService) Update(ctx context.Context, code string, req *UpdateFranchiseeRequest) (*model.Franchisee, error) {
	if err := validateStruct(req).OrNil(); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.ContactPhone != nil {
		fields["contact_phone"] = strings.TrimSpace(*req.ContactPhone)
	}
	if req.ContactEmail != nil {
		fields["contact_email"] = strings.TrimSpace(*req.ContactEmail)
	}
	if req.Active != nil {
		fields["active"] = *req.Active
	}
	if len(fields) == 0 {
		return nil, ErrNoFieldsToUpdate
	}

	f, err := s.repo.Update(ctx, strings.TrimSpace(code), fields)
	if err != nil {
		return nil, err
	}
	log.Printf("[Franchisee] 加盟商已更新: code=%s, fields=%d", f.Code, len(fields))
	return f, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
