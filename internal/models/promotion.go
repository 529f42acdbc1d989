package models

import (
	"errors"
	"time"
)

// ErrPipelineExhausted is returned when every configured scrape attempt failed.
var ErrPipelineExhausted = errors.New("scrape pipeline exhausted all attempts")

// UnknownPromotionTitle is used when a promotion page title cannot be read.
const UnknownPromotionTitle = "Unknown Promotion"

// ProductDetails is one product offered under a promotion.
type ProductDetails struct {
	ASIN            string `firestore:"asin" json:"asin" validate:"required,alphanum,len=10"`
	ProductTitle    string `firestore:"productTitle" json:"product_title" validate:"required"`
	ProductURL      string `firestore:"productURL" json:"product_url" validate:"required,url"`
	ProductImageURL string `firestore:"productImageURL,omitempty" json:"product_image_url" validate:"omitempty,url"`
	ProductPrice    string `firestore:"productPrice,omitempty" json:"product_price"`
	ProductSales    int    `firestore:"productSales" json:"product_sales" validate:"gte=0"`
	PromotionCode   string `firestore:"promotionCode" json:"promotion_code" validate:"required"`
	PromotionTitle  string `firestore:"promotionTitle" json:"promotion_title"`
	PromotionURL    string `firestore:"promotionURL" json:"promotion_url" validate:"required,url"`
}

// PromotionRecord groups the products harvested for one promotion code.
type PromotionRecord struct {
	Code         string
	Title        string
	PromotionURL string
	Products     []ProductDetails
}

// RecentProduct marks a product that has already been notified.
type RecentProduct struct {
	ASIN        string    `firestore:"asin"`
	PromoCode   string    `firestore:"promoCode"`
	LastUpdated time.Time `firestore:"lastUpdated"`
}

// NotificationSettings is the persisted notification configuration.
type NotificationSettings struct {
	ChannelID          string `firestore:"channelId" json:"channel_id"`
	MonthlySalesCutoff int    `firestore:"monthlySalesCutoff" json:"monthly_sales_cutoff" validate:"gte=0"`
}
