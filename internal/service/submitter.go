package service

import (
	"context"
	"fmt"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/refclient"
)

// ReferralSubmitter 派生出的推荐请求的提交方式
type ReferralSubmitter interface {
	Submit(ctx context.Context, req *CreateReferralRequest) (*model.Referral, error)
}

// LocalSubmitter 直接调用本进程的写入服务
type LocalSubmitter struct {
	referralService *ReferralService
}

func NewLocalSubmitter(referralService *ReferralService) *LocalSubmitter {
	return &LocalSubmitter{referralService: referralService}
}

func (s *LocalSubmitter) Submit(ctx context.Context, req *CreateReferralRequest) (*model.Referral, error) {
	return s.referralService.CreateReferral(ctx, req)
}

// RemoteSubmitter 通过 HTTP 调用另一个推荐服务
type RemoteSubmitter struct {
	client *refclient.Client
}

func NewRemoteSubmitter(client *refclient.Client) *RemoteSubmitter {
	return &RemoteSubmitter{client: client}
}

// Submit 对端返回 409 时转换为 ErrDuplicateReferral
func (s *RemoteSubmitter) Submit(ctx context.Context, req *CreateReferralRequest) (*model.Referral, error) {
	res, err := s.client.PostReferral(ctx, refclient.ReferralPayload{
		ReferrerCustomerCode: req.ReferrerCustomerCode,
		ReferredInvoiceCode:  req.ReferredInvoiceCode,
		FranchiseeCode:       req.FranchiseeCode,
		InvoiceAmountINR:     req.InvoiceAmountINR,
		InvoiceDate:          req.InvoiceDate,
	})
	if err != nil {
		if refclient.IsConflict(err) {
			return nil, ErrDuplicateReferral
		}
		return nil, fmt.Errorf("远程提交推荐记录失败: %w", err)
	}

	ref := &model.Referral{
		ID:                   res.ID,
		ReferrerCustomerCode: res.ReferrerCustomerCode,
		ReferredInvoiceCode:  res.ReferredInvoiceCode,
		FranchiseeCode:       res.FranchiseeCode,
		InvoiceAmountINR:     res.InvoiceAmountINR,
		ReferralRewardINR:    res.ReferralRewardINR,
	}
	if d, err := model.ParseDate(res.InvoiceDate); err == nil {
		ref.InvoiceDate = d
	}
	return ref, nil
}
