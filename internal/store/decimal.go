package store

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// The durable store keeps numbers as decimal strings. Conversion uses the
// shortest decimal that round-trips through float64, so integers come back
// exactly and non-terminating decimals stay within float64 precision.

// FloatToDecimal renders a float64 as an exact decimal string.
func FloatToDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// DecimalToFloat parses a decimal string back into a float64.
func DecimalToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// marshalFlowchart converts a schemaless flowchart value into an attribute
// value tree, turning every float into a decimal number attribute.
func marshalFlowchart(v any) (types.AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}, nil
	case string:
		return &types.AttributeValueMemberS{Value: val}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: FloatToDecimal(val)}, nil
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(val)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(val, 10)}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(val))
		for k, item := range val {
			av, err := marshalFlowchart(item)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case []any:
		l := make([]types.AttributeValue, len(val))
		for i, item := range val {
			av, err := marshalFlowchart(item)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported flowchart value type %T", v)
	}
}

// unmarshalFlowchart converts an attribute value tree back into plain Go
// values, with numbers as float64.
func unmarshalFlowchart(av types.AttributeValue) (any, error) {
	switch val := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberBOOL:
		return val.Value, nil
	case *types.AttributeValueMemberS:
		return val.Value, nil
	case *types.AttributeValueMemberN:
		return DecimalToFloat(val.Value)
	case *types.AttributeValueMemberM:
		m := make(map[string]any, len(val.Value))
		for k, item := range val.Value {
			v, err := unmarshalFlowchart(item)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case *types.AttributeValueMemberL:
		l := make([]any, len(val.Value))
		for i, item := range val.Value {
			v, err := unmarshalFlowchart(item)
			if err != nil {
				return nil, err
			}
			l[i] = v
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", av)
	}
}
