package ua

import (
	"context"

	"github.com/ghettovoice/gosip/sip"
)

// ProvisionalHandler sees every 1xx response of a request.
type ProvisionalHandler func(response sip.Response)

// RequestWithContext sends request and waits for its final response. A
// 401/407 challenge is answered once with authorizer. Cancelling ctx while
// only provisional responses arrived sends CANCEL for the request and
// yields a 487 RequestError.
func (ua *UserAgent) RequestWithContext(ctx context.Context, request sip.Request, authorizer sip.Authorizer) (sip.Response, error) {
	return ua.requestWithContext(ctx, request, authorizer, nil)
}

func (ua *UserAgent) requestWithContext(ctx context.Context, request sip.Request, authorizer sip.Authorizer, onProvisional ProvisionalHandler) (sip.Response, error) {
	s := ua.stack
	tx, err := s.Request(sip.CopyRequest(request))
	if err != nil {
		return nil, err
	}

	var lastResponse sip.Response
	previousResponses := make([]sip.Response, 0)
	previousResponsesStatuses := make(map[sip.StatusCode]bool)

	terminated := func() error {
		if lastResponse != nil {
			lastResponse.SetPrevious(previousResponses)
		}
		return sip.NewRequestError(487, "Request Terminated", request, lastResponse)
	}

	for {
		select {
		case <-ctx.Done():
			if lastResponse != nil && lastResponse.IsProvisional() {
				s.CancelRequest(request, lastResponse)
			}
			// pull out later possible transaction responses and errors
			go func() {
				for {
					select {
					case <-tx.Done():
						return
					case <-tx.Errors():
					case response, ok := <-tx.Responses():
						if ok && response.IsSuccess() && request.IsInvite() {
							// the far end answered after all; ACK it
							s.AckInviteRequest(request, response)
						}
					}
				}
			}()
			return nil, terminated()

		case err, ok := <-tx.Errors():
			if !ok {
				return nil, terminated()
			}
			return nil, err

		case response, ok := <-tx.Responses():
			if !ok {
				return nil, terminated()
			}

			response = sip.CopyResponse(response)
			lastResponse = response

			if response.IsProvisional() {
				if _, ok := previousResponsesStatuses[response.StatusCode()]; !ok {
					previousResponses = append(previousResponses, response)
					previousResponsesStatuses[response.StatusCode()] = true
				}
				if onProvisional != nil {
					onProvisional(response)
				}
				continue
			}

			if response.IsSuccess() {
				response.SetPrevious(previousResponses)

				if request.IsInvite() {
					s.AckInviteRequest(request, response)
					s.RememberInviteRequest(request)
					go func() {
						for response := range tx.Responses() {
							s.AckInviteRequest(request, response)
						}
					}()
				}
				return response, nil
			}

			// unauth request
			if (response.StatusCode() == 401 || response.StatusCode() == 407) && authorizer != nil {
				if err := authorizer.AuthorizeRequest(request, response); err != nil {
					return nil, err
				}
				return ua.requestWithContext(ctx, request, nil, onProvisional)
			}

			response.SetPrevious(previousResponses)
			return nil, sip.NewRequestError(uint(response.StatusCode()), response.Reason(), request, response)
		}
	}
}
