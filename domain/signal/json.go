package signal

import "encoding/json"

func marshalFeatures(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	return json.Marshal(m)
}

func unmarshalFeatures(raw []byte, out *map[string]interface{}) error {
	if len(raw) == 0 {
		*out = map[string]interface{}{}
		return nil
	}
	return json.Unmarshal(raw, out)
}

func marshalStrings(s []string) ([]byte, error) {
	if s == nil {
		s = []string{}
	}
	return json.Marshal(s)
}

func unmarshalStrings(raw []byte, out *[]string) error {
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	return json.Unmarshal(raw, out)
}
