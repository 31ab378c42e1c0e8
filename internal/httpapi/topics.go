package httpapi

import (
	"context"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/mcclellann/lifeledger/pkg/store"
)

func (s *Server) ownedTopic(ctx context.Context, r *http.Request) (*models.Topic, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	topic, err := s.study.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic.OwnerKey != OwnerFrom(ctx) {
		return nil, store.ErrNotFound
	}
	return topic, nil
}

func (s *Server) createTopicHandler(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "httpapi.createTopic", err)
		return
	}

	topic, err := s.study.AddTopic(r.Context(), OwnerFrom(r.Context()), req.Syllabus, req.Name)
	if err != nil {
		s.writeError(w, r, "httpapi.createTopic", err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

// listTopicsHandler lists the caller's topics. ?syllabus= narrows the list
// and ?due=YYYY-MM-DD (or "today") returns only topics due on or before
// that date. The two filters combine.
func (s *Server) listTopicsHandler(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFrom(r.Context())
	due := r.URL.Query().Get("due")
	syllabus := r.URL.Query().Get("syllabus")

	var (
		topics []*models.Topic
		err    error
	)
	switch due {
	case "":
		topics, err = s.study.ListTopics(r.Context(), owner, syllabus)
	case "today":
		topics, err = s.study.DueTopics(r.Context(), owner, s.study.Today())
	default:
		var on civil.Date
		if on, err = civil.ParseDate(due); err != nil {
			err = badRequest("due must be a date in YYYY-MM-DD format or \"today\"")
			break
		}
		topics, err = s.study.DueTopics(r.Context(), owner, on)
	}
	if err != nil {
		s.writeError(w, r, "httpapi.listTopics", err)
		return
	}
	if due != "" && syllabus != "" {
		topics = inSyllabus(topics, syllabus)
	}
	if topics == nil {
		topics = []*models.Topic{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func inSyllabus(topics []*models.Topic, syllabus string) []*models.Topic {
	var kept []*models.Topic
	for _, t := range topics {
		if t.Syllabus == syllabus {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Server) getTopicHandler(w http.ResponseWriter, r *http.Request) {
	topic, err := s.ownedTopic(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.getTopic", err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) deleteTopicHandler(w http.ResponseWriter, r *http.Request) {
	topic, err := s.ownedTopic(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.deleteTopic", err)
		return
	}
	if err := s.study.DeleteTopic(r.Context(), topic.ID); err != nil {
		s.writeError(w, r, "httpapi.deleteTopic", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) completeTopicHandler(w http.ResponseWriter, r *http.Request) {
	topic, err := s.ownedTopic(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.completeTopic", err)
		return
	}
	topic, err = s.study.CompleteTopic(r.Context(), topic.ID)
	if err != nil {
		s.writeError(w, r, "httpapi.completeTopic", err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) scheduleTopicHandler(w http.ResponseWriter, r *http.Request) {
	topic, err := s.ownedTopic(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.scheduleTopic", err)
		return
	}
	topic, err = s.study.ScheduleTopic(r.Context(), topic.ID)
	if err != nil {
		s.writeError(w, r, "httpapi.scheduleTopic", err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) reviewTopicHandler(w http.ResponseWriter, r *http.Request) {
	topic, err := s.ownedTopic(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.reviewTopic", err)
		return
	}

	var req reviewRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "httpapi.reviewTopic", err)
		return
	}

	topic, err = s.study.SubmitReview(r.Context(), topic.ID, *req.Quality)
	if err != nil {
		s.writeError(w, r, "httpapi.reviewTopic", err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}
