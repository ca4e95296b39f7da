package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	pubsub "github.com/coregx/pubsub-broker"
	"github.com/coregx/pubsub-broker/model"
)

// authenticate resolves the request's Basic credentials. Missing,
// malformed and wrong credentials are all reported the same way.
func (s *Server) authenticate(c echo.Context, cid string) (Identity, error) {
	username, password, ok := c.Request().BasicAuth()
	if !ok {
		s.logger.Warnf("[%s] no Authorization header; path=%s", cid, c.Path())
		return Identity{}, pubsub.NewError(pubsub.ErrCodeAuthentication, "Unauthorized")
	}

	id, ok := s.security.ResolveIdentity(username, password)
	if !ok {
		s.logger.Warnf("[%s] invalid credentials for `%s`; path=%s", cid, username, c.Path())
		return Identity{}, pubsub.NewError(pubsub.ErrCodeAuthentication, "Unauthorized")
	}
	return id, nil
}

// authorize checks the caller's permission patterns against the topic.
// Principals are registered with the matcher lazily, on first use.
func (s *Server) authorize(cid, secName, topic, operation string) (pubsub.EvaluationResult, error) {
	if !s.matcher.HasClient(secName) {
		if patterns := s.security.PatternsFor(secName); len(patterns) > 0 {
			if err := s.matcher.AddClient(secName, patterns); err != nil {
				return pubsub.EvaluationResult{}, pubsub.NewErrorWithCause(
					pubsub.ErrCodeInternal, "Internal error", err)
			}
		}
	}

	result := s.matcher.Evaluate(secName, topic, operation)
	if !result.OK {
		s.logger.Warnf("[%s] %s denied for `%s` on `%s`: %s", cid, operation, secName, topic, result.Reason)
		return result, pubsub.NewError(pubsub.ErrCodeAuthorization, result.Reason)
	}
	return result, nil
}

func (s *Server) handlePublish(c echo.Context) error {
	cid := model.NewCID()
	topicName := c.Param("topic")

	s.logger.Infof("[%s] processing publish request for `%s`", cid, topicName)

	identity, err := s.authenticate(c, cid)
	if err != nil {
		return s.writeError(c, cid, err)
	}

	if _, err := s.authorize(cid, identity.SecName, topicName, pubsub.OperationPublish); err != nil {
		return s.writeError(c, cid, err)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "Input data missing"))
	}

	var req PublishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "Input data missing"))
	}
	if err := req.Validate(); err != nil {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, err.Error()))
	}

	data, err := req.DataString()
	if err != nil {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "Message data missing"))
	}
	if len(data) > model.MaxMessageLen {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "Message data too large"))
	}

	topic := s.ensureTopic(c.Request().Context(), topicName)
	subs := s.registry.GetSubscriptionsByTopic(topicName)

	msg := model.NewPubSubMessage(topic, data)
	msg.SetPriority(req.Priority)
	msg.SetExpiration(req.Expiration)
	msg.ExtClientID = req.ExtClientID
	msg.InReplyTo = req.InReplyTo
	if req.CorrelID != "" {
		msg.CorrelID = req.CorrelID
	} else {
		msg.CorrelID = cid
	}

	msg.SubPatternMatched = make(map[string]string, len(subs))
	for _, sub := range subs {
		msg.SubPatternMatched[sub.SubKey] = sub.SubPatternMatched
	}

	ctx := c.Request().Context()
	result, err := s.pipeline.Publish(ctx, topic, []model.PubSubMessage{msg}, subs)
	if err != nil {
		if pubsub.IsConflict(err) {
			return s.writeError(c, cid, pubsub.NewErrorWithCause(
				pubsub.ErrCodeConflict, "Duplicate message ID", err))
		}
		return s.writeError(c, cid, pubsub.NewErrorWithCause(
			pubsub.ErrCodeInternal, "Internal error publishing message", err))
	}

	if err := s.relay(c, msg, topicName); err != nil {
		return s.writeError(c, cid, pubsub.NewErrorWithCause(
			pubsub.ErrCodeBackend, "Failed to publish message", err))
	}

	s.logger.Infof("[%s] published `%s` to `%s`, fanned out to %d", cid, msg.PubMsgID, topicName, result.FannedOut)

	resp := okResponse(cid)
	resp.MessageCount = &result.FannedOut
	return c.JSON(http.StatusOK, resp)
}

// ensureTopic returns the topic for name, persisting a new topic row
// (and adopting its durable ID) when a topic repository is configured.
// Persistence failures fall back to an in-memory topic so a publish
// never fails over topic bookkeeping.
func (s *Server) ensureTopic(ctx context.Context, name string) model.Topic {
	if topic, ok := s.registry.GetTopic(name); ok {
		return topic
	}
	if s.topics == nil {
		return s.registry.EnsureTopic(name)
	}

	topic, err := s.topics.GetByName(ctx, name)
	if pubsub.IsNoData(err) {
		topic, err = s.topics.Save(ctx, model.NewTopic(name))
	}
	if err != nil {
		s.logger.Errorf("could not persist topic `%s`: %v", name, err)
		return s.registry.EnsureTopic(name)
	}

	s.registry.AdoptTopic(topic)
	return topic
}

// relay hands the accepted message to the backend broker under the
// configured exchange, with the topic name as the routing key. A nil
// pool means the broker leg is disabled.
func (s *Server) relay(c echo.Context, msg model.PubSubMessage, topicName string) error {
	if s.pool == nil {
		return nil
	}

	payload, err := json.Marshal(relayEnvelope(msg, time.Now().UTC()))
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire()
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	headers := map[string]string{
		"topic_name": topicName,
		"msg_id":     msg.PubMsgID,
	}
	return conn.Publish(c.Request().Context(), s.exchange, topicName, payload, headers)
}

func (s *Server) handleMessagesGet(c echo.Context) error {
	cid := model.NewCID()

	identity, err := s.authenticate(c, cid)
	if err != nil {
		return s.writeError(c, cid, err)
	}

	var req MessagesGetRequest
	body, err := io.ReadAll(c.Request().Body)
	if err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "Input data missing"))
		}
	}
	if err := req.Validate(); err != nil {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, err.Error()))
	}
	req.Clamp()

	subs := s.registry.Lookup(identity.SecName)
	if len(subs) == 0 {
		s.logger.Warnf("[%s] no subscription found for user `%s`", cid, identity.Username)
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "No subscription found for user"))
	}

	sub := subs[0]
	if !sub.IsDeliveryActive {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "Delivery disabled"))
	}

	envelopes, err := s.fetchMessages(c, sub, req)
	if err != nil {
		return s.writeError(c, cid, pubsub.NewErrorWithCause(
			pubsub.ErrCodeInternal, "Internal error retrieving messages", err))
	}

	s.logger.Infof("[%s] retrieved %d message(s) for `%s` from `%s`", cid, len(envelopes), identity.Username, sub.SubKey)

	count := len(envelopes)
	resp := okResponse(cid)
	resp.MessageCount = &count

	if req.MaxMessages == 1 && !req.WrapInList && count == 1 {
		resp.Data = envelopes[0].Data
		resp.Meta = envelopes[0].Meta
	} else {
		if envelopes == nil {
			envelopes = []Envelope{}
		}
		resp.Messages = &envelopes
	}

	return c.JSON(http.StatusOK, resp)
}

// fetchMessages drains up to the requested number of messages from the
// caller's queue: from the backend broker when a pool is configured,
// otherwise from the durable delivery queue. Either way each message is
// acknowledged as it is retrieved (at-least-once).
func (s *Server) fetchMessages(c echo.Context, sub model.Subscription, req MessagesGetRequest) ([]Envelope, error) {
	ctx := c.Request().Context()
	now := time.Now().UTC()

	if s.pool != nil {
		conn, err := s.pool.Acquire()
		if err != nil {
			return nil, err
		}
		defer s.pool.Release(conn)

		subject := s.exchange + "." + sub.TopicName
		raw, err := conn.Fetch(ctx, sub.SubKey, subject, req.MaxMessages, s.fetchWait)
		if err != nil {
			return nil, err
		}

		envelopes := make([]Envelope, 0, len(raw))
		for i := range raw {
			var payload map[string]interface{}
			if err := json.Unmarshal(raw[i].Data, &payload); err != nil {
				payload = map[string]interface{}{"data": string(raw[i].Data)}
			}
			envelopes = append(envelopes, envelopeFromPayload(payload, req.MaxLen, now))
			if err := raw[i].Ack(); err != nil {
				s.logger.Warnf("ack failed for `%s`: %v", sub.SubKey, err)
			}
		}
		return envelopes, nil
	}

	msgs, err := s.store.FetchPendingForSubKey(ctx, sub.SubKey, req.MaxMessages)
	if err != nil {
		return nil, err
	}

	envelopes := make([]Envelope, 0, len(msgs))
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		envelopes = append(envelopes, envelopeFromStored(msgs[i], req.MaxLen, now))
		ids = append(ids, msgs[i].PubMsgID)
	}

	if len(ids) > 0 {
		if err := s.store.MarkDelivered(ctx, sub.SubKey, ids); err != nil {
			return nil, err
		}
	}
	return envelopes, nil
}

func (s *Server) handleSubscribe(c echo.Context) error {
	cid := model.NewCID()
	topicName := c.Param("topic")

	s.logger.Infof("[%s] processing subscribe request for `%s`", cid, topicName)

	identity, err := s.authenticate(c, cid)
	if err != nil {
		return s.writeError(c, cid, err)
	}

	result, err := s.authorize(cid, identity.SecName, topicName, pubsub.OperationSubscribe)
	if err != nil {
		return s.writeError(c, cid, err)
	}

	if !model.IsValidTopicName(topicName) {
		return s.writeError(c, cid, pubsub.NewError(pubsub.ErrCodeValidation, "Invalid topic name"))
	}

	sub := model.NewSubscription(identity.SecName, topicName)
	sub.SubPatternMatched = result.MatchedPattern

	s.ensureTopic(c.Request().Context(), topicName)
	created := s.registry.Create(sub, []string{topicName})

	if s.catalog != nil {
		for _, cs := range created {
			if _, err := s.catalog.SaveSubscription(c.Request().Context(), cs); err != nil {
				s.logger.Errorf("[%s] failed to persist subscription `%s`: %v", cid, cs.SubKey, err)
			}
		}
	}

	s.logger.Infof("[%s] subscribed `%s` to `%s` with key `%s`", cid, identity.SecName, topicName, sub.SubKey)
	return c.JSON(http.StatusOK, okResponse(cid))
}

func (s *Server) handleUnsubscribe(c echo.Context) error {
	cid := model.NewCID()
	topicName := c.Param("topic")

	s.logger.Infof("[%s] processing unsubscribe request for `%s`", cid, topicName)

	identity, err := s.authenticate(c, cid)
	if err != nil {
		return s.writeError(c, cid, err)
	}

	removed := s.registry.Delete(identity.SecName, []string{topicName})

	if s.catalog != nil && removed > 0 {
		if err := s.catalog.DeleteSubscription(c.Request().Context(), topicName, identity.SecName); err != nil {
			s.logger.Errorf("[%s] failed to remove subscription row: %v", cid, err)
		}
	}

	return c.JSON(http.StatusOK, okResponse(cid))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, okResponse(model.NewCID()))
}
