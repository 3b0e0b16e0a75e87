package consensus

//
//            Propose()                    (announce sent, agents spawned)
//+------+  -------------> +----------+  ------------------> +-----------+
//| Idle |                 | Proposed |                      | Exploring | <---- ProposalAnnounce / AntHop
//+------+                 +----------+                      +-----+-----+       of a newer round (join)
//   ^                                                             |
//   |          +--------------------+-----------------------------+
//   |          |                    |                             |
//   |          v                    v                             v
//   |   +-----------+        +-----------+                 +-----------+
//   |   |  Decided  |        | Cancelled |                 | TimedOut  |
//   |   +-----------+        +-----------+                 +-----+-----+
//   |   threshold reached    Cancel() or RoundCancel             |
//   |   or decision adopted  from a proposer                     |
//   +------------------------------------------------------------+
//                      (RoundCancel broadcast)
//
// Decided和Cancelled同样可以发起或者加入新的round

//ConsensusState - 共识状态机，负责round的推进
//	- RoundState - 当前round、候选值、提案节点和结果
//	- pheromone.Store - 本节点的信息素表，进入新的round时清空
//	- ant.Engine - agent的产生、增强和转发
//	- state.NodeState - 邻居的存活和报告的强度，见过的最大round
//	- store.DecisionStore - 每一轮的结果
//	- RoundClock - round超时
//Reactor - 组播传输和ConsensusState之间的桥梁，心跳和邻居的存活
