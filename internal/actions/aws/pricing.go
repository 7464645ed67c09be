package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// OnDemandPriceRequest asks for the hourly on-demand price of an instance type.
type OnDemandPriceRequest struct {
	// InstanceType is the EC2 instance type, for example "m5.large". Required.
	InstanceType string `json:"instance_type"`

	// OperatingSystem filters the offer. Defaults to Linux.
	OperatingSystem string `json:"operating_system"`
}

func (r *OnDemandPriceRequest) Validate() error {
	if r.InstanceType == "" {
		return errors.New("instance_type is required")
	}
	if r.OperatingSystem == "" {
		r.OperatingSystem = "Linux"
	}
	return nil
}

type priceSummary struct {
	InstanceType string  `json:"instance_type"`
	Region       string  `json:"region"`
	HourlyUSD    float64 `json:"hourly_usd"`
}

func (p *Pack) getOnDemandPrice(ctx context.Context, req OnDemandPriceRequest) (any, error) {
	cacheKey := req.InstanceType + ":" + req.OperatingSystem

	p.mu.RLock()
	price, cached := p.priceCache[cacheKey]
	p.mu.RUnlock()
	if cached {
		return priceSummary{
			InstanceType: req.InstanceType,
			Region:       p.region,
			HourlyUSD:    price,
		}, nil
	}

	input := &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			termMatch("instanceType", req.InstanceType),
			termMatch("operatingSystem", req.OperatingSystem),
			termMatch("preInstalledSw", "NA"),
			termMatch("tenancy", "Shared"),
			termMatch("capacitystatus", "Used"),
			termMatch("regionCode", p.region),
		},
		MaxResults: aws.Int32(1),
	}

	out, err := p.pricing.GetProducts(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	if len(out.PriceList) == 0 {
		return nil, fmt.Errorf("no on-demand pricing for %s in %s", req.InstanceType, p.region)
	}

	price, err = lowestOnDemandUSD(out.PriceList[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse pricing for %s: %w", req.InstanceType, err)
	}

	p.mu.Lock()
	p.priceCache[cacheKey] = price
	p.mu.Unlock()

	p.logger.Debug("resolved on-demand price",
		"instance_type", req.InstanceType,
		"region", p.region,
		"hourly_usd", price,
	)

	return priceSummary{
		InstanceType: req.InstanceType,
		Region:       p.region,
		HourlyUSD:    price,
	}, nil
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Type:  pricingtypes.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

// lowestOnDemandUSD extracts the cheapest positive hourly USD rate from a
// Pricing API price-list document. One document can carry several on-demand
// terms and price dimensions; the cheapest one is the effective rate.
func lowestOnDemandUSD(document string) (float64, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(document), &payload); err != nil {
		return 0, fmt.Errorf("invalid price-list document: %w", err)
	}

	onDemand := childMap(childMap(payload, "terms"), "OnDemand")
	if len(onDemand) == 0 {
		return 0, errors.New("price-list document has no OnDemand terms")
	}

	best := 0.0
	for _, termAny := range onDemand {
		term, ok := termAny.(map[string]any)
		if !ok {
			continue
		}
		dimensions := childMap(term, "priceDimensions")
		for _, dimensionAny := range dimensions {
			dimension, ok := dimensionAny.(map[string]any)
			if !ok {
				continue
			}
			rate, ok := parseUSD(childMap(dimension, "pricePerUnit")["USD"])
			if !ok {
				continue
			}
			if best == 0 || rate < best {
				best = rate
			}
		}
	}

	if best == 0 {
		return 0, errors.New("price-list document has no positive USD rate")
	}
	return best, nil
}

// childMap descends one level into a decoded JSON object.
func childMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	child, _ := m[key].(map[string]any)
	return child
}

// parseUSD accepts both the string and numeric price encodings the Pricing
// API emits.
func parseUSD(v any) (float64, bool) {
	switch value := v.(type) {
	case string:
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate <= 0 {
			return 0, false
		}
		return rate, true
	case float64:
		if value <= 0 {
			return 0, false
		}
		return value, true
	}
	return 0, false
}
