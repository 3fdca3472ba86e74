package fixtures

import (
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/shopspring/decimal"
)

const DefaultProvider = "default"

func strPtr(s string) *string { return &s }

// Catalog entries mirror the seed migration and the mock panel's service ids.
var (
	InstagramFollowers = model.Service{
		Name:         "Instagram Followers",
		Category:     "Instagram",
		Price:        decimal.RequireFromString("2.50"),
		MinQuantity:  50,
		MaxQuantity:  100000,
		Active:       true,
		APIProvider:  strPtr(DefaultProvider),
		APIServiceID: strPtr("101"),
	}

	TikTokViews = model.Service{
		Name:         "TikTok Views",
		Category:     "TikTok",
		Price:        decimal.RequireFromString("0.15"),
		MinQuantity:  100,
		MaxQuantity:  1000000,
		Active:       true,
		APIProvider:  strPtr(DefaultProvider),
		APIServiceID: strPtr("201"),
	}

	ManualPageLikes = model.Service{
		Name:        "Facebook Page Likes",
		Category:    "Facebook",
		Price:       decimal.RequireFromString("3.00"),
		MinQuantity: 100,
		MaxQuantity: 20000,
		Active:      true,
	}

	RetiredService = model.Service{
		Name:        "Twitter Retweets",
		Category:    "Twitter",
		Price:       decimal.RequireFromString("1.00"),
		MinQuantity: 10,
		MaxQuantity: 1000,
		Active:      false,
	}
)

var (
	ValidTargetURLs = []string{
		"https://instagram.com/someone",
		"http://www.tiktok.com/@someone/video/1234567890",
		"https://youtube.com/channel/UC123",
	}

	InvalidTargetURLs = []string{
		"instagram.com/someone",
		"ftp://example.com/file",
		"https://",
		"not a url",
	}

	InvalidBalances = []string{
		"NaN",
		"abc",
		"1,000",
		"Infinity",
	}
)

func OrderRequest(serviceID uuid.UUID, quantity int) model.OrderCreateRequest {
	return model.OrderCreateRequest{
		ServiceID: serviceID,
		Quantity:  quantity,
		TargetURL: ValidTargetURLs[0],
	}
}

func DepositRequest(amount string) model.DepositRequest {
	return model.DepositRequest{
		Amount:    decimal.RequireFromString(amount),
		PayerName: "Ama Mensah",
	}
}
