package usecase

import repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

// validateIDs checks every non-empty id against the store's key format.
// Required ids are checked for presence by the callers.
func validateIDs(repo repository.ChatRepository, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := repo.ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}
