package service

import "github.com/listenupapp/castshelf/internal/apperr"

func collectionNotFound(id string) error {
	return apperr.NotFoundf("collection %q not registered", id)
}
