package toolsurface

// Forward implements ssh_forward (spec §6, §4.8).
func (e *Engine) Forward(sessionID string, localPort uint16, remoteHost string, remotePort uint16) (ForwardResult, error) {
	_, handle, err := e.Sessions.Get(sessionID)
	if err != nil {
		return ForwardResult{}, NotFoundErr(sessionID)
	}
	e.Sessions.Touch(sessionID)

	fwd, err := e.Forwards.Start(sessionID, localPort, remoteHost, remotePort, handle)
	if err != nil {
		return ForwardResult{}, err
	}

	return ForwardResult{
		LocalAddress:  fwd.LocalAddress,
		RemoteAddress: fwd.RemoteAddress,
		Active:        true,
	}, nil
}
