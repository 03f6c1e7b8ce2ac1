package extraction

import (
	"context"

	"github.com/ternarybob/extracta/internal/models"
)

// enrichAnswerOptions copies catalogue answer options onto classification results.
// The provider catalogue is tried first, then the locally synced one. Best effort.
func (s *Service) enrichAnswerOptions(ctx context.Context, metadata map[string]*models.AnswerMetadata) {
	if len(metadata) == 0 {
		return
	}

	options := make(map[string]models.AnswerOptions)
	catalogue, err := s.provider.FetchFieldCatalogue(ctx, false)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Field catalogue unavailable, using local copy for answer options")
	}
	for _, field := range catalogue {
		if _, wanted := metadata[field.FieldID]; wanted && len(field.AnswerOptions) > 0 {
			options[field.FieldID] = field.AnswerOptions
		}
	}

	for fieldID, meta := range metadata {
		if meta == nil {
			continue
		}
		opts, ok := options[fieldID]
		if !ok {
			local, err := s.fields.Get(ctx, fieldID)
			if err != nil || len(local.AnswerOptions) == 0 {
				continue
			}
			opts = local.AnswerOptions
		}
		meta.AnswerOptions = make(map[string]string, len(opts))
		for k, v := range opts {
			meta.AnswerOptions[k] = v
		}
		s.logger.Debug().Str("field_id", fieldID).Int("options", len(opts)).Msg("Added answer options")
	}
}
