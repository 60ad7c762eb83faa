package csfloat

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"skin-arbitrage-monitor/internal/core/model"
)

type rawMessage = json.RawMessage

// ErrNotListingArray 批量响应既不是数组也不是 {"data": [...]}
var ErrNotListingArray = errors.New("批量挂单响应不是数组")

// ParseListing 解析单条挂单记录
func ParseListing(data []byte) (model.Listing, error) {
	var rec listingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Listing{}, fmt.Errorf("解析挂单失败: %w", err)
	}
	return rec.toListing()
}

// ParseListings 解析批量挂单响应
// 单条记录解析失败时跳过该条，失败原因在 skipped 中返回；整体格式错误时返回 err。
func ParseListings(data []byte) (listings []model.Listing, skipped []error, err error) {
	elems, err := splitArray(data)
	if err != nil {
		return nil, nil, err
	}

	listings = make([]model.Listing, 0, len(elems))
	for i, raw := range elems {
		l, err := ParseListing(raw)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("第 %d 条: %w", i, err))
			continue
		}
		listings = append(listings, l)
	}
	return listings, skipped, nil
}

// splitArray 拆分顶层数组为单条原始记录
func splitArray(data []byte) ([]rawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNotListingArray
	}

	switch trimmed[0] {
	case '[':
		var elems []rawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("解析批量挂单失败: %w", err)
		}
		return elems, nil
	case '{':
		var env listingsEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("解析批量挂单失败: %w", err)
		}
		if env.Data == nil {
			return nil, ErrNotListingArray
		}
		return env.Data, nil
	default:
		return nil, ErrNotListingArray
	}
}

func (r *listingRecord) toListing() (model.Listing, error) {
	if r.ID == "" {
		return model.Listing{}, fmt.Errorf("缺少 id")
	}
	if r.Price == nil {
		return model.Listing{}, fmt.Errorf("挂单 %s 缺少 price", r.ID)
	}
	state := model.ListingState(r.State)
	if !state.Valid() {
		return model.Listing{}, fmt.Errorf("挂单 %s 状态未知: %q", r.ID, r.State)
	}
	if r.Item == nil || r.Item.MarketHashName == "" {
		return model.Listing{}, fmt.Errorf("挂单 %s 缺少 item.market_hash_name", r.ID)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return model.Listing{}, fmt.Errorf("挂单 %s created_at 格式错误: %w", r.ID, err)
	}

	return model.Listing{
		ID:        r.ID,
		Price:     model.Price(*r.Price),
		State:     state,
		CreatedAt: createdAt.UTC(),
		Item: model.Item{
			MarketHashName: r.Item.MarketHashName,
			IsSouvenir:     r.Item.IsSouvenir,
			FloatValue:     r.Item.FloatValue,
			Phase:          r.Item.Phase,
		},
	}, nil
}
