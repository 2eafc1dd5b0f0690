package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/podible/podible-server/internal/apperr"
	"github.com/podible/podible-server/internal/domain"
)

func (s *Server) handleListBooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, s.core.BooksSorted())
}

func (s *Server) handleFeedBooks(w http.ResponseWriter, _ *http.Request) {
	if s.noRoots {
		writeError(w, s.logger, apperr.Internal("no library roots configured"))
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.core.FeedBooksSorted())
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.findBook(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusOK, book)
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	book, ok := s.findBook(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.core.Chapters(&book))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	book, ok := s.findBook(w, r)
	if !ok {
		return
	}
	if !book.Streamable() {
		writeError(w, s.logger, apperr.NotFoundf("book %q is not yet streamable", book.ID))
		return
	}
	if err := s.core.Stream(w, r, &book); err != nil {
		s.logger.Warn("httpapi: stream failed", "book", book.ID, "error", err)
	}
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	book, ok := s.findBook(w, r)
	if !ok {
		return
	}
	if book.CoverPath == nil {
		writeError(w, s.logger, apperr.NotFoundf("book %q has no cover", book.ID))
		return
	}
	http.ServeFile(w, r, *book.CoverPath)
}

func (s *Server) handleEpub(w http.ResponseWriter, r *http.Request) {
	book, ok := s.findBook(w, r)
	if !ok {
		return
	}
	if book.EpubPath == nil {
		writeError(w, s.logger, apperr.NotFoundf("book %q has no companion e-book", book.ID))
		return
	}
	http.ServeFile(w, r, *book.EpubPath)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, s.core.StatusSnapshot())
}

// findBook resolves the {id} path parameter to a Book, writing a 404
// response and returning ok == false if it isn't found.
func (s *Server) findBook(w http.ResponseWriter, r *http.Request) (domain.Book, bool) {
	id := chi.URLParam(r, "id")
	book, ok := s.core.Find(id)
	if !ok {
		writeError(w, s.logger, apperr.NotFoundf("book %q not found", id))
		return domain.Book{}, false
	}
	return book, true
}
