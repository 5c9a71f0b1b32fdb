package webhook

import (
	"encoding/json"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
)

func unmarshalPayload(body []byte, out *models.JSON) error {
	if len(body) == 0 {
		*out = models.JSON{}
		return nil
	}
	return json.Unmarshal(body, out)
}
