package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ConfigDataType is the closed set of value types a config key may hold.
type ConfigDataType string

const (
	ConfigNumber ConfigDataType = "number"
	ConfigString ConfigDataType = "string"
	ConfigBool   ConfigDataType = "bool"
)

// ConfigChange is one entry in a key's append-only change history.
type ConfigChange struct {
	OldValue  string    `json:"old_value"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

// ConfigValue is a tunable parameter with its type, default and full change
// history. Values are stored as strings and validated against DataType when
// set and when read.
type ConfigValue struct {
	Key           string         `json:"key"`
	Value         string         `json:"value"`
	DataType      ConfigDataType `json:"data_type"`
	DefaultValue  string         `json:"default_value"`
	ChangeHistory []ConfigChange `json:"change_history,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Number parses the value as a decimal. Fails when DataType is not number or
// the stored string does not parse.
func (c *ConfigValue) Number() (decimal.Decimal, error) {
	if c.DataType != ConfigNumber {
		return decimal.Zero, fmt.Errorf("config key %s holds %s, not a number", c.Key, c.DataType)
	}
	d, err := decimal.NewFromString(c.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config key %s has malformed number %q: %w", c.Key, c.Value, err)
	}
	return d, nil
}

// Bool parses the value as a boolean ("true"/"false").
func (c *ConfigValue) Bool() (bool, error) {
	if c.DataType != ConfigBool {
		return false, fmt.Errorf("config key %s holds %s, not a bool", c.Key, c.DataType)
	}
	switch c.Value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("config key %s has malformed bool %q", c.Key, c.Value)
}

// Validate checks the stored value against the declared data type.
func (c *ConfigValue) Validate() error {
	switch c.DataType {
	case ConfigNumber:
		_, err := c.Number()
		return err
	case ConfigBool:
		_, err := c.Bool()
		return err
	case ConfigString:
		return nil
	}
	return fmt.Errorf("config key %s has unknown data type %q", c.Key, c.DataType)
}

// Config keys consumed by the trading engine.
const (
	ConfigKeyBuyFeePct           = "gold.buy_fee_pct"
	ConfigKeySellFeePct          = "gold.sell_fee_pct"
	ConfigKeyDriftTolerance      = "gold.price_drift_tolerance"
	ConfigKeyMinTradeGrams       = "gold.min_trade_grams"
	ConfigKeyMinDeposit          = "wallet.min_deposit"
	ConfigKeyMinWithdrawal       = "wallet.min_withdrawal"
	ConfigKeyDeliveryFlatFee     = "delivery.flat_fee"
	ConfigKeyInsuredSurchargePct = "delivery.insured_surcharge_pct"
	ConfigKeyStandardDays        = "delivery.standard_days"
	ConfigKeyExpressDays         = "delivery.express_days"
	ConfigKeyInsuredDays         = "delivery.insured_days"
)

// ConfigDefaults maps every engine key to its default value. The sell fee is
// deliberately lower than the buy fee (asymmetric spread).
var ConfigDefaults = map[string]ConfigValue{
	ConfigKeyBuyFeePct:           {Key: ConfigKeyBuyFeePct, Value: "0.02", DataType: ConfigNumber, DefaultValue: "0.02"},
	ConfigKeySellFeePct:          {Key: ConfigKeySellFeePct, Value: "0.01", DataType: ConfigNumber, DefaultValue: "0.01"},
	ConfigKeyDriftTolerance:      {Key: ConfigKeyDriftTolerance, Value: "0.02", DataType: ConfigNumber, DefaultValue: "0.02"},
	ConfigKeyMinTradeGrams:       {Key: ConfigKeyMinTradeGrams, Value: "0.1", DataType: ConfigNumber, DefaultValue: "0.1"},
	ConfigKeyMinDeposit:          {Key: ConfigKeyMinDeposit, Value: "1", DataType: ConfigNumber, DefaultValue: "1"},
	ConfigKeyMinWithdrawal:       {Key: ConfigKeyMinWithdrawal, Value: "1", DataType: ConfigNumber, DefaultValue: "1"},
	ConfigKeyDeliveryFlatFee:     {Key: ConfigKeyDeliveryFlatFee, Value: "25", DataType: ConfigNumber, DefaultValue: "25"},
	ConfigKeyInsuredSurchargePct: {Key: ConfigKeyInsuredSurchargePct, Value: "0.005", DataType: ConfigNumber, DefaultValue: "0.005"},
	ConfigKeyStandardDays:        {Key: ConfigKeyStandardDays, Value: "7", DataType: ConfigNumber, DefaultValue: "7"},
	ConfigKeyExpressDays:         {Key: ConfigKeyExpressDays, Value: "2", DataType: ConfigNumber, DefaultValue: "2"},
	ConfigKeyInsuredDays:         {Key: ConfigKeyInsuredDays, Value: "5", DataType: ConfigNumber, DefaultValue: "5"},
}
