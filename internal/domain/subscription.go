package domain

import "fmt"

// DeliveryMethod selects which provider a subscription is delivered through.
type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "EMAIL"
	DeliverySlack DeliveryMethod = "SLACK"
)

func (d DeliveryMethod) Valid() bool {
	return d == DeliveryEmail || d == DeliverySlack
}

// AggregationFrequency selects whether events are delivered immediately or
// held for a scheduled flush.
type AggregationFrequency string

const (
	FrequencyImmediate AggregationFrequency = "IMMEDIATE"
	FrequencyHourly    AggregationFrequency = "HOURLY"
	FrequencyDaily     AggregationFrequency = "DAILY"
	FrequencyWeekly    AggregationFrequency = "WEEKLY"
)

func (f AggregationFrequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// AggregationMethod selects the rendered body format.
type AggregationMethod string

const (
	AggregationPlain AggregationMethod = "PLAIN"
	AggregationHTML  AggregationMethod = "HTML"
	AggregationMIME  AggregationMethod = "MIME"
)

func (m AggregationMethod) Valid() bool {
	switch m {
	case AggregationPlain, AggregationHTML, AggregationMIME:
		return true
	}
	return false
}

// DeliveryErrorStrategy controls what happens to an event after a failed
// delivery attempt.
type DeliveryErrorStrategy string

const (
	StrategyRetry  DeliveryErrorStrategy = "RETRY"
	StrategyIgnore DeliveryErrorStrategy = "IGNORE"
)

func (s DeliveryErrorStrategy) Valid() bool {
	return s == StrategyRetry || s == StrategyIgnore
}

// Subscription is a subscriber's delivery preference. A user may own many.
type Subscription struct {
	SubscriptionID            string                `json:"subscription_id" gorm:"primaryKey;column:subscription_id"`
	UserID                    string                `json:"user_id" gorm:"column:user_id;index:idx_sub_user"`
	DeliveryMethod            DeliveryMethod        `json:"delivery_method" gorm:"column:delivery_method"`
	AggregationFrequency      AggregationFrequency  `json:"aggregation_frequency" gorm:"column:aggregation_frequency"`
	AggregationMethod         AggregationMethod     `json:"aggregation_method" gorm:"column:aggregation_method"`
	DeliveryErrorStrategy     DeliveryErrorStrategy `json:"delivery_error_strategy" gorm:"column:delivery_error_strategy"`
	DeliveryTime              string                `json:"delivery_time" gorm:"column:delivery_time"`
	Timezone                  string                `json:"timezone" gorm:"column:timezone"`
	EmailAddress              string                `json:"email_address,omitempty" gorm:"column:email_address"`
	SlackWebhookURL           string                `json:"slack_webhook_url,omitempty" gorm:"column:slack_webhook_url"`
	AggregatedMessageSubject  string                `json:"aggregated_message_subject,omitempty" gorm:"column:aggregated_message_subject"`
	Enabled                   bool                  `json:"enabled" gorm:"column:enabled"`
}

// TableName pins the GORM table name.
func (Subscription) TableName() string { return "subscriptions" }

// Validate enforces the §3 invariants: exactly one of email_address /
// slack_webhook_url populated, selected by delivery_method, and every enum
// field must be one of its known values. Unknown enum values are rejected
// rather than coerced.
func (s Subscription) Validate() error {
	if s.SubscriptionID == "" {
		return fmt.Errorf("subscription_id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !s.DeliveryMethod.Valid() {
		return fmt.Errorf("invalid delivery_method %q", s.DeliveryMethod)
	}
	if !s.AggregationFrequency.Valid() {
		return fmt.Errorf("invalid aggregation_frequency %q", s.AggregationFrequency)
	}
	if s.AggregationMethod == "" {
		s.AggregationMethod = AggregationPlain
	}
	if !s.AggregationMethod.Valid() {
		return fmt.Errorf("invalid aggregation_method %q", s.AggregationMethod)
	}
	if s.DeliveryErrorStrategy == "" {
		s.DeliveryErrorStrategy = StrategyRetry
	}
	if !s.DeliveryErrorStrategy.Valid() {
		return fmt.Errorf("invalid delivery_error_strategy %q", s.DeliveryErrorStrategy)
	}

	hasEmail := s.EmailAddress != ""
	hasSlack := s.SlackWebhookURL != ""
	switch s.DeliveryMethod {
	case DeliveryEmail:
		if !hasEmail {
			return fmt.Errorf("email_address is required for EMAIL delivery")
		}
		if hasSlack {
			return fmt.Errorf("slack_webhook_url must not be set for EMAIL delivery")
		}
	case DeliverySlack:
		if !hasSlack {
			return fmt.Errorf("slack_webhook_url is required for SLACK delivery")
		}
		if hasEmail {
			return fmt.Errorf("email_address must not be set for SLACK delivery")
		}
	}
	return nil
}
