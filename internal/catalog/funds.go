package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/leowzhang/fundwatch/internal/model"
)

// GetFundsOptions filter a fund page request.
type GetFundsOptions struct {
	Page    int    // 1-indexed page number
	Size    int    // Page size; the server caps at 100
	Type    string // Fund type filter
	Company string // Company filter
	Keyword string // Name/code search
}

// FundPage is one page of catalog results.
type FundPage struct {
	Items []model.Fund
	Total int
	Page  int
	Size  int
	Pages int
}

// Wire types for the catalog API.
type fundWire struct {
	FundCode    string  `json:"fund_code"`
	FundName    string  `json:"fund_name"`
	FundType    string  `json:"fund_type"`
	FundCompany string  `json:"fund_company"`
	LatestNAV   float64 `json:"latest_nav"`
	UpdatedAt   int64   `json:"updated_at"`
}

type fundPageWire struct {
	Data struct {
		Items []fundWire `json:"items"`
		Total int        `json:"total"`
		Page  int        `json:"page"`
		Size  int        `json:"size"`
		Pages int        `json:"pages"`
	} `json:"data"`
}

type fundDetailWire struct {
	Data fundWire `json:"data"`
}

// GetFunds fetches a page of funds.
func (c *Client) GetFunds(ctx context.Context, opts GetFundsOptions) (*FundPage, error) {
	query := url.Values{}

	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Size > 0 {
		query.Set("size", strconv.Itoa(opts.Size))
	}
	if opts.Type != "" {
		query.Set("fund_type", opts.Type)
	}
	if opts.Company != "" {
		query.Set("company", opts.Company)
	}
	if opts.Keyword != "" {
		query.Set("keyword", opts.Keyword)
	}

	var resp fundPageWire
	if err := c.get(ctx, "/funds", query, &resp); err != nil {
		return nil, fmt.Errorf("get funds: %w", err)
	}

	page := &FundPage{
		Items: make([]model.Fund, 0, len(resp.Data.Items)),
		Total: resp.Data.Total,
		Page:  resp.Data.Page,
		Size:  resp.Data.Size,
		Pages: resp.Data.Pages,
	}
	for _, w := range resp.Data.Items {
		page.Items = append(page.Items, fundFromWire(w))
	}

	return page, nil
}

// AllFunds fetches every fund by paginating through results.
func (c *Client) AllFunds(ctx context.Context) ([]model.Fund, error) {
	var all []model.Fund
	opts := GetFundsOptions{Page: 1, Size: 100}

	for {
		page, err := c.GetFunds(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Items...)

		if page.Pages == 0 || opts.Page >= page.Pages || len(page.Items) == 0 {
			break
		}
		opts.Page++
	}

	return all, nil
}

// GetFund fetches a single fund by code.
func (c *Client) GetFund(ctx context.Context, code string) (*model.Fund, error) {
	var resp fundDetailWire
	if err := c.get(ctx, "/funds/"+code, nil, &resp); err != nil {
		return nil, fmt.Errorf("get fund %s: %w", code, err)
	}

	f := fundFromWire(resp.Data)
	return &f, nil
}

func fundFromWire(w fundWire) model.Fund {
	f := model.Fund{
		Code:      w.FundCode,
		Name:      w.FundName,
		Type:      w.FundType,
		Company:   w.FundCompany,
		LatestNAV: w.LatestNAV,
	}
	if w.UpdatedAt > 0 {
		f.UpdatedAt = time.Unix(w.UpdatedAt, 0)
	}
	return f
}
